package domain

import "encoding/json"

type EmailTemplate string

const (
	EmailOrderConfirmation EmailTemplate = "order-confirmation"
	EmailOrderStatusUpdate EmailTemplate = "order-status-update"
	EmailWelcome           EmailTemplate = "welcome"
	EmailContactResponse   EmailTemplate = "contact-response"
	EmailPasswordReset     EmailTemplate = "password-reset"
)

func (t EmailTemplate) Valid() bool {
	switch t {
	case EmailOrderConfirmation, EmailOrderStatusUpdate, EmailWelcome, EmailContactResponse, EmailPasswordReset:
		return true
	}
	return false
}

type EmailRequest struct {
	Type EmailTemplate   `json:"type" validate:"required,oneof=order-confirmation order-status-update welcome contact-response password-reset"`
	To   string          `json:"to" validate:"required,email"`
	Data json.RawMessage `json:"data"`
}

// PasswordResetData is the payload expected by the password-reset template.
type PasswordResetData struct {
	Name     string `json:"name"`
	ResetURL string `json:"reset_url"`
}

type Email struct {
	To      string
	Subject string
	HTML    string
}

type WelcomeData struct {
	Name string `json:"name"`
}

type ContactResponseData struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
}
