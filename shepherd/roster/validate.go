package roster

import (
	"fmt"
	"regexp"
	"time"
)

var bloodGroups = map[string]struct{}{
	"A+": {}, "A-": {}, "B+": {}, "B-": {}, "AB+": {}, "AB-": {}, "O+": {}, "O-": {},
}

var genders = map[string]struct{}{
	"Male": {}, "Female": {}, "Other": {},
}

// Accepted date-of-birth layouts, tried in order.
var dateLayouts = []string{"2006-01-02", "01/02/2006", "02-01-2006"}

var emailRegexp = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Optional leading +, then digits, spaces, hyphens and parentheses only.
var phoneRegexp = regexp.MustCompile(`^\+?[0-9()\s-]+$`)

// Validate checks a parsed record, short-circuiting on the first violation:
// required fields, then email shape, phone shape, blood group, date of
// birth, gender. It is pure and storage-free; a nil return means the row is
// eligible for entity resolution.
func Validate(rec RowRecord) error {
	required := []struct {
		value string
		name  string
	}{
		{rec.FirstName, "First Name"},
		{rec.LastName, "Last Name"},
		{rec.Email, "Email"},
		{rec.Phone, "Phone"},
		{rec.FamilyName, "Family Name"},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}

	if !emailRegexp.MatchString(rec.Email) {
		return fmt.Errorf("invalid email format: %s", rec.Email)
	}

	if err := validatePhone(rec.Phone); err != nil {
		return err
	}

	if rec.BloodGroup != "" {
		if _, ok := bloodGroups[rec.BloodGroup]; !ok {
			return fmt.Errorf("invalid blood group: %s", rec.BloodGroup)
		}
	}

	if rec.DateOfBirth != "" {
		if _, err := ParseDate(rec.DateOfBirth); err != nil {
			return fmt.Errorf("invalid date of birth: %s", rec.DateOfBirth)
		}
	}

	if rec.Gender != "" {
		if _, ok := genders[rec.Gender]; !ok {
			return fmt.Errorf("invalid gender: %s (must be Male, Female or Other)", rec.Gender)
		}
	}

	return nil
}

func validatePhone(phone string) error {
	if !phoneRegexp.MatchString(phone) {
		return fmt.Errorf("invalid phone format: %s", phone)
	}

	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 10 {
		return fmt.Errorf("phone must contain at least 10 digits: %s", phone)
	}

	return nil
}

// ParseDate parses a cell against the accepted date layouts.
func ParseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %s", value)
}
