package services

import (
	"regexp"
	"strings"

	domainerrors "unity/contexts/identity-access/auth-service/domain/errors"
)

const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Registration struct {
	Name     string
	Email    string
	Password string
}

// ValidateRegistration checks the signup form in the order the user sees the
// messages: missing fields, email shape, password length, confirmation.
func ValidateRegistration(name string, email string, password string, confirmPassword string) (Registration, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" || confirmPassword == "" {
		return Registration{}, domainerrors.ErrMissingFields
	}
	if !emailPattern.MatchString(email) {
		return Registration{}, domainerrors.ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return Registration{}, domainerrors.ErrPasswordTooShort
	}
	if password != confirmPassword {
		return Registration{}, domainerrors.ErrPasswordMismatch
	}
	return Registration{
		Name:     name,
		Email:    NormalizeEmail(email),
		Password: password,
	}, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
