package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sakashimaa/ravolux/pkg/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidQuantity    = errors.New("quantity must be greater than zero")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrNothingToUpdate    = errors.New("nothing to update")
	ErrEmptyCart          = errors.New("cart has no orderable items")
)

// ValidationError carries per-field messages keyed by json field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func validateStruct(v *validator.Validate, in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}

	fields := utils.FormatValidationError(err)
	if len(fields) == 0 {
		return fmt.Errorf("validation: %w", err)
	}

	return &ValidationError{Fields: fields}
}
