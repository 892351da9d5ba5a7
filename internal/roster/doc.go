// Package roster applies the state transitions of the attendee roster:
// account approval, role changes, NFC link issuance and scans, profile
// updates from the scan stations and the admin console, data-only
// accounts, deletions, exports and audit trail maintenance.
//
// Every operation takes the calling access.Principal and checks its
// capabilities before touching the store. Multi-statement changes run in
// one transaction and their audit entries are written after commit, so a
// failed audit write can never undo a committed change.
package roster
