package attendee

import "errors"

var (
	// ErrProfileNotFound is returned when a user has no profile row.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrLinkNotFound is returned when no NFC link matches.
	ErrLinkNotFound = errors.New("NFC link not found")

	// ErrLinkExists is returned when the user already has an NFC link.
	ErrLinkExists = errors.New("user already has an NFC link")

	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidDiet is returned for a diet other than veg or nonveg.
	ErrInvalidDiet = errors.New("invalid diet")

	// ErrAllergensTooLong is returned when allergens exceed MaxAllergensLength.
	ErrAllergensTooLong = errors.New("allergens field too long")

	// ErrNoFields is returned when an update touches no field.
	ErrNoFields = errors.New("no valid fields to update")
)
