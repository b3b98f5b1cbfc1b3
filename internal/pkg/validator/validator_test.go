package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		password string
		want     error
	}{
		{"short1", ErrPasswordTooShort},
		{"onlyletters", ErrPasswordTooWeak},
		{"1234567890", ErrPasswordTooWeak},
		{strings.Repeat("a1", 40), ErrPasswordTooLong},
		{"lamp2025", nil},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.ErrorIs(t, v.ValidatePassword(tt.password), tt.want)
		})
	}
}
