package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// NewValidator reports fields by their json names and validates
// decimal.Decimal values as numbers, so gt=0 works on money fields.
func NewValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// FormatValidationError turns validator errors into a field -> message map.
// Non-validation errors yield an empty map.
func FormatValidationError(err error) map[string]string {
	result := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return result
	}

	for _, fieldErr := range validationErrors {
		field := fieldName(fieldErr)

		switch fieldErr.Tag() {
		case "required", "required_without", "required_if":
			result[field] = fmt.Sprintf("%s is required", field)
		case "email":
			result[field] = fmt.Sprintf("%s must be a valid email", field)
		case "min":
			result[field] = fmt.Sprintf("%s must be at least %s characters", field, fieldErr.Param())
		case "max":
			result[field] = fmt.Sprintf("%s must be at most %s characters", field, fieldErr.Param())
		case "gt":
			result[field] = fmt.Sprintf("%s must be greater than %s", field, fieldErr.Param())
		case "gte":
			result[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, fieldErr.Param())
		case "oneof":
			result[field] = fmt.Sprintf("%s must be one of [%s]", field, fieldErr.Param())
		case "url":
			result[field] = fmt.Sprintf("%s must be a valid URL", field)
		default:
			result[field] = fmt.Sprintf("%s is invalid", field)
		}
	}

	return result
}

// fieldName drops the root struct name from the namespace, so nested fields
// read as billing_address.city.
func fieldName(fieldErr validator.FieldError) string {
	ns := fieldErr.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}

	return strings.ToLower(ns)
}
