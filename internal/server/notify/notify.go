// Package notify is the notification gateway: it renders account emails
// and hands them to a sink (SMTP, a NATS subject, or the log).
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
)

// Kind selects the message template.
type Kind string

const (
	KindVerificationCode     Kind = "verification_code"
	KindWelcome              Kind = "welcome"
	KindPasswordResetCode    Kind = "password_reset_code"
	KindPasswordResetSuccess Kind = "password_reset_success"
	KindEmailChangeCode      Kind = "email_change_code"
	KindEmailChanged         Kind = "email_changed"
)

var subjects = map[Kind]string{
	KindVerificationCode:     "Verify your email",
	KindWelcome:              "Welcome to ERPKeeper",
	KindPasswordResetCode:    "Your password reset code",
	KindPasswordResetSuccess: "Your password was reset",
	KindEmailChangeCode:      "Confirm your new email",
	KindEmailChanged:         "Your email was changed",
}

// Payload carries the values substituted into a template.
type Payload struct {
	Name string `json:"name,omitempty"`
	Code string `json:"code,omitempty"`
}

// Gateway delivers one message. Implementations must be safe for
// concurrent use.
type Gateway interface {
	Send(ctx context.Context, to string, kind Kind, payload Payload) error
}

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer turns a kind and payload into a subject and an HTML body.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

func (r *Renderer) Render(kind Kind, payload Payload) (subject, body string, err error) {
	subject, ok := subjects[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification kind %q", kind)
	}

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, string(kind), payload); err != nil {
		return "", "", fmt.Errorf("render %s: %w", kind, err)
	}
	return subject, buf.String(), nil
}
