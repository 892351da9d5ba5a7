package attendee

import (
	"fmt"
	"unicode/utf8"
)

// MaxAllergensLength is the longest allergens text accepted, in characters.
const MaxAllergensLength = 500

// ValidateAllergens checks the allergens length limit.
func ValidateAllergens(s string) error {
	if n := utf8.RuneCountInString(s); n > MaxAllergensLength {
		return fmt.Errorf("%w: %d characters, max %d", ErrAllergensTooLong, n, MaxAllergensLength)
	}
	return nil
}

// ParseDiet converts s to a Diet. Empty input selects DefaultDiet.
func ParseDiet(s string) (Diet, error) {
	if s == "" {
		return DefaultDiet, nil
	}
	d := Diet(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDiet, s)
	}
	return d, nil
}

// Validate checks field values. It does not check permissions.
func (u ProfileUpdate) Validate() error {
	if u.Diet != nil && !u.Diet.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDiet, *u.Diet)
	}
	if u.Allergens != nil {
		return ValidateAllergens(*u.Allergens)
	}
	return nil
}
