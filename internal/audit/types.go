package audit

import (
	"errors"
	"time"
)

// Actions written to the audit trail.
const (
	ActionEmergencyAdminLogin    = "emergency_admin_login"
	ActionUserLogin              = "user_login"
	ActionUserApproved           = "user_approved"
	ActionUserRejected           = "user_rejected"
	ActionNfcLinkCreate          = "nfc_link_create"
	ActionNfcScan                = "nfc_scan"
	ActionProfileUpdate          = "profile_update"
	ActionProfileUpdateSelf      = "profile_update_self"
	ActionRoleUpdate             = "role_update"
	ActionProfileUpdateAdmin     = "profile_update_admin"
	ActionProfileUpdateAdminBulk = "profile_update_admin_bulk"
	ActionUserDelete             = "user_delete"
	ActionDataOnlyUserCreate     = "data_only_user_create"
	ActionAuditDelete            = "audit_delete"
	ActionAuditBulkDelete        = "audit_bulk_delete"
)

// Page size bounds for List.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// ErrNotFound is returned when an entry id does not exist.
var ErrNotFound = errors.New("audit log not found")

// Origin identifies where a request came from.
type Origin struct {
	IPAddress string
	UserAgent string
}

// Entry is an audit record to be written. ActorID and TargetUserID are
// optional; snapshots are resolved from the users table at write time
// unless the Snapshot fields are set explicitly (used when the target row
// is about to be deleted in the same operation).
type Entry struct {
	ActorID      string
	TargetUserID string
	Action       string
	Details      map[string]any
	Origin

	ActorSnapshot  *Party
	TargetSnapshot *Party
}

// Party is an actor or target as shown in the trail.
type Party struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Log is a stored audit entry.
type Log struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Actor      Party          `json:"actor"`
	TargetUser Party          `json:"target_user"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action string // optional: exact action match
	Search string // optional: case-insensitive substring over names, emails, action and IP
	Limit  int    // default 100, max 500
	Offset int    // pagination offset
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []Log `json:"logs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
