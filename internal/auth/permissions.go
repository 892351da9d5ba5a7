package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermViewOwnProfile    Permission = "canViewOwnProfile"
	PermUpdateOwnProfile  Permission = "canUpdateOwnProfile"
	PermViewAllUsers      Permission = "canViewAllUsers"
	PermUpdateBagsChecked Permission = "canUpdateBagsChecked"
	PermUpdateAttendance  Permission = "canUpdateAttendance"
	PermUpdateDiet        Permission = "canUpdateDiet"
	PermUpdateAllergens   Permission = "canUpdateAllergens"
	PermManageUsers       Permission = "canManageUsers"
	PermViewAuditLogs     Permission = "canViewAuditLogs"
	PermApproveUsers      Permission = "canApproveUsers"
)

// AllPermissions lists every permission in table order.
var AllPermissions = []Permission{
	PermViewOwnProfile, PermUpdateOwnProfile, PermViewAllUsers,
	PermUpdateBagsChecked, PermUpdateAttendance, PermUpdateDiet,
	PermUpdateAllergens, PermManageUsers, PermViewAuditLogs, PermApproveUsers,
}

// Capabilities is the resolved permission record for one role.
type Capabilities struct {
	ViewOwnProfile    bool `json:"canViewOwnProfile"`
	UpdateOwnProfile  bool `json:"canUpdateOwnProfile"`
	ViewAllUsers      bool `json:"canViewAllUsers"`
	UpdateBagsChecked bool `json:"canUpdateBagsChecked"`
	UpdateAttendance  bool `json:"canUpdateAttendance"`
	UpdateDiet        bool `json:"canUpdateDiet"`
	UpdateAllergens   bool `json:"canUpdateAllergens"`
	ManageUsers       bool `json:"canManageUsers"`
	ViewAuditLogs     bool `json:"canViewAuditLogs"`
	ApproveUsers      bool `json:"canApproveUsers"`
}

// allCapabilities grants everything. Used for admin and the emergency bypass.
var allCapabilities = Capabilities{
	ViewOwnProfile: true, UpdateOwnProfile: true, ViewAllUsers: true,
	UpdateBagsChecked: true, UpdateAttendance: true, UpdateDiet: true,
	UpdateAllergens: true, ManageUsers: true, ViewAuditLogs: true, ApproveUsers: true,
}

// CapabilitiesFor returns the static capability record for role.
// This is the single source of truth for the authorisation model.
// Unknown roles get nothing.
func CapabilitiesFor(role Role) Capabilities {
	switch role {
	case RoleUser:
		return Capabilities{ViewOwnProfile: true}
	case RoleSecurity:
		return Capabilities{
			ViewOwnProfile:    true,
			ViewAllUsers:      true,
			UpdateBagsChecked: true,
			UpdateAttendance:  true,
		}
	case RoleOverseer:
		return Capabilities{
			ViewOwnProfile: true,
			ViewAllUsers:   true,
			ViewAuditLogs:  true,
		}
	case RoleAdmin:
		return allCapabilities
	}
	return Capabilities{}
}

// EmergencyCapabilities is the record granted to the emergency admin
// regardless of its stored role.
func EmergencyCapabilities() Capabilities {
	return allCapabilities
}

// Has reports whether the record grants perm. Unknown permissions are denied.
func (c Capabilities) Has(perm Permission) bool {
	switch perm {
	case PermViewOwnProfile:
		return c.ViewOwnProfile
	case PermUpdateOwnProfile:
		return c.UpdateOwnProfile
	case PermViewAllUsers:
		return c.ViewAllUsers
	case PermUpdateBagsChecked:
		return c.UpdateBagsChecked
	case PermUpdateAttendance:
		return c.UpdateAttendance
	case PermUpdateDiet:
		return c.UpdateDiet
	case PermUpdateAllergens:
		return c.UpdateAllergens
	case PermManageUsers:
		return c.ManageUsers
	case PermViewAuditLogs:
		return c.ViewAuditLogs
	case PermApproveUsers:
		return c.ApproveUsers
	}
	return false
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return CapabilitiesFor(role).Has(perm)
}

// Field names a mutable attendee profile field.
type Field string

// Profile fields gated by permission.
const (
	FieldBagsChecked  Field = "bags_checked"
	FieldAttendance   Field = "attendance"
	FieldReceivedFood Field = "received_food"
	FieldDiet         Field = "diet"
	FieldAllergens    Field = "allergens"
)

// FieldPermission maps a profile field to the permission that gates it.
// received_food shares the diet permission.
func FieldPermission(field Field) (Permission, bool) {
	switch field {
	case FieldBagsChecked:
		return PermUpdateBagsChecked, true
	case FieldAttendance:
		return PermUpdateAttendance, true
	case FieldReceivedFood, FieldDiet:
		return PermUpdateDiet, true
	case FieldAllergens:
		return PermUpdateAllergens, true
	}
	return "", false
}

// CanUpdateField reports whether the capability record allows writing field.
func (c Capabilities) CanUpdateField(field Field) bool {
	perm, ok := FieldPermission(field)
	return ok && c.Has(perm)
}

// CanUpdateField reports whether role may write field. Unknown fields are denied.
func CanUpdateField(role Role, field Field) bool {
	return CapabilitiesFor(role).CanUpdateField(field)
}

// CanRegisterAttendees reports whether the record may issue NFC links and
// create data-only users. It follows the attendance permission.
func (c Capabilities) CanRegisterAttendees() bool {
	return c.UpdateAttendance
}
