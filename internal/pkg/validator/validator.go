package validator

import (
	"errors"
	"unicode"
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes long")
	ErrPasswordTooWeak  = errors.New("password must contain at least one digit and one letter")
)

type Validator interface {
	ValidatePassword(password string) error
}

type passwordValidator struct{}

func NewValidator() Validator {
	return &passwordValidator{}
}

// ValidatePassword caps length at 72 bytes, the most bcrypt will hash.
func (v *passwordValidator) ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	if len(password) > 72 {
		return ErrPasswordTooLong
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}

	if !hasLetter || !hasDigit {
		return ErrPasswordTooWeak
	}

	return nil
}
