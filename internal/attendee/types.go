package attendee

import (
	"time"

	"github.com/wesmun/nfc-core/internal/auth"
)

// Diet is the meal preference recorded on a profile.
type Diet string

const (
	DietVeg    Diet = "veg"
	DietNonVeg Diet = "nonveg"
)

// DefaultDiet is used when a profile is created without one.
const DefaultDiet = DietNonVeg

// Valid reports whether d is a known diet.
func (d Diet) Valid() bool {
	return d == DietVeg || d == DietNonVeg
}

// Profile is the attendee status record, 1:1 with a user.
type Profile struct {
	UserID       string    `json:"user_id"`
	BagsChecked  bool      `json:"bags_checked"`
	Attendance   bool      `json:"attendance"`
	ReceivedFood bool      `json:"received_food"`
	Diet         Diet      `json:"diet"`
	Allergens    string    `json:"allergens,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NfcLink binds an opaque scan uuid to a user.
type NfcLink struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	UUID          string     `json:"uuid"`
	ScanCount     int64      `json:"scan_count"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ProfileUpdate is a partial profile write. Nil fields are left untouched.
// An empty Allergens string clears the field.
type ProfileUpdate struct {
	BagsChecked  *bool   `json:"bags_checked,omitempty"`
	Attendance   *bool   `json:"attendance,omitempty"`
	ReceivedFood *bool   `json:"received_food,omitempty"`
	Diet         *Diet   `json:"diet,omitempty"`
	Allergens    *string `json:"allergens,omitempty"`
}

// Fields lists the profile fields the update touches, in column order.
func (u ProfileUpdate) Fields() []auth.Field {
	var fields []auth.Field
	if u.BagsChecked != nil {
		fields = append(fields, auth.FieldBagsChecked)
	}
	if u.Attendance != nil {
		fields = append(fields, auth.FieldAttendance)
	}
	if u.ReceivedFood != nil {
		fields = append(fields, auth.FieldReceivedFood)
	}
	if u.Diet != nil {
		fields = append(fields, auth.FieldDiet)
	}
	if u.Allergens != nil {
		fields = append(fields, auth.FieldAllergens)
	}
	return fields
}

// Empty reports whether the update touches nothing.
func (u ProfileUpdate) Empty() bool {
	return len(u.Fields()) == 0
}

// Attendee is an approved user with their profile and link, either of
// which may be absent.
type Attendee struct {
	auth.User
	Profile *Profile `json:"profile"`
	NfcLink *NfcLink `json:"nfc_link"`
}
