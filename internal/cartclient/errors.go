package cartclient

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrCartNotInitialized = errors.New("cart not initialized")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrSubmitInProgress   = errors.New("order submission already in progress")
)

// APIError is a non-2xx answer from the store API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("store api: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request could succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// FormError lists checkout form fields that failed validation.
type FormError struct {
	Fields map[string]string
}

func (e *FormError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return "invalid checkout form: " + strings.Join(keys, ", ")
}
