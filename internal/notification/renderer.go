package notification

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

var ErrUnknownTemplate = errors.New("unknown email template")

type Renderer struct {
	templates *template.Template
	baseURL   string
}

type templateData struct {
	BaseURL string
	Data    any
}

func NewRenderer(baseURL string) (*Renderer, error) {
	tmpl, err := template.New("email").
		Funcs(template.FuncMap{
			"money": func(d decimal.Decimal) string {
				return "€" + d.StringFixed(2)
			},
		}).
		ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	return &Renderer{
		templates: tmpl,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}, nil
}

// Render decodes data into the payload type the template expects and
// produces a ready-to-send email.
func (r *Renderer) Render(name domain.EmailTemplate, to string, data json.RawMessage) (*domain.Email, error) {
	var (
		payload any
		subject string
	)

	switch name {
	case domain.EmailOrderConfirmation:
		var d domain.OrderCreatedEvent
		if err := decode(data, &d); err != nil {
			return nil, err
		}
		payload, subject = d, fmt.Sprintf("Order confirmation %s", d.OrderNumber)
	case domain.EmailOrderStatusUpdate:
		var d domain.OrderStatusUpdatedEvent
		if err := decode(data, &d); err != nil {
			return nil, err
		}
		payload, subject = d, fmt.Sprintf("Order %s is %s", d.OrderNumber, d.Status)
	case domain.EmailWelcome:
		var d domain.WelcomeData
		if err := decode(data, &d); err != nil {
			return nil, err
		}
		payload, subject = d, "Welcome to RAVOLUX"
	case domain.EmailContactResponse:
		var d domain.ContactResponseData
		if err := decode(data, &d); err != nil {
			return nil, err
		}
		payload, subject = d, "We received your message"
	case domain.EmailPasswordReset:
		var d domain.PasswordResetData
		if err := decode(data, &d); err != nil {
			return nil, err
		}
		if d.ResetURL == "" {
			return nil, fmt.Errorf("password-reset: reset_url is required")
		}
		payload, subject = d, "Reset your RAVOLUX password"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, string(name), templateData{BaseURL: r.baseURL, Data: payload}); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}

	return &domain.Email{
		To:      to,
		Subject: subject,
		HTML:    buf.String(),
	}, nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode template data: %w", err)
	}
	return nil
}
