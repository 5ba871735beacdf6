package annuaire

import (
	"regexp"
	"strings"
)

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	phonePattern    = regexp.MustCompile(`^(\+?\d{1,3})?[0-9]{9,10}$`)
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", ".", "")
)

func validateEmail(email string) error {
	if email == "" {
		return invalid("email address is required")
	}
	if !emailPattern.MatchString(email) {
		return invalid("invalid email address format: %s", email)
	}
	return nil
}

// validatePhone accepts national and international formats
// (e.g. 0612345678, +33 6 12 34 56 78). An empty phone is valid:
// the field is optional.
func validatePhone(phone string) error {
	if phone == "" {
		return nil
	}
	cleaned := phoneSeparators.Replace(phone)
	if !phonePattern.MatchString(cleaned) {
		return invalid("invalid phone number format: %s", phone)
	}
	return nil
}

func validateUsername(username string) error {
	if username == "" {
		return invalid("username is required")
	}
	if len(username) < 3 {
		return invalid("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return invalid("username must be at most 50 characters")
	}
	if !usernamePattern.MatchString(username) {
		return invalid("username may only contain letters, digits and underscores")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return invalid("password is required")
	}
	if len(password) < 6 {
		return invalid("password must be at least 6 characters")
	}
	return nil
}

func validateName(field, value string) error {
	if value == "" {
		return invalid("%s is required", field)
	}
	if len(value) > 100 {
		return invalid("%s must be at most 100 characters", field)
	}
	return nil
}

// validateContact checks the full contact record: required names and email,
// optional phone.
func validateContact(c Contact) error {
	if err := validateName("last name", c.Nom); err != nil {
		return err
	}
	if err := validateName("first name", c.Prenom); err != nil {
		return err
	}
	if err := validateEmail(c.Email); err != nil {
		return err
	}
	return validatePhone(c.Telephone)
}
