// Package notification describes the emails the portal sends. Delivery is
// behind Sender; the domain only knows templates, recipients and variables.
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// Template names an email template.
type Template string

const (
	TemplateRegistrationConfirmation Template = "registration_confirmation"
	TemplateAchievementUnlocked      Template = "achievement_unlocked"
)

// Templates lists every template the portal knows.
func Templates() []Template {
	return []Template{TemplateRegistrationConfirmation, TemplateAchievementUnlocked}
}

// IsValid reports whether t is a known template.
func (t Template) IsValid() bool {
	for _, known := range Templates() {
		if t == known {
			return true
		}
	}
	return false
}

func (t Template) String() string {
	return string(t)
}

// Message is one email ready to send.
type Message struct {
	Template Template
	To       string
	Vars     map[string]string
}

// NewMessage validates the template and recipient.
func NewMessage(template Template, to string, vars map[string]string) (Message, error) {
	if !template.IsValid() {
		return Message{}, shared.WrapError("email", "NewMessage", shared.ErrInvalidInput,
			fmt.Sprintf("unknown template %q", template), shared.ErrUnknownTemplate)
	}
	to = strings.TrimSpace(to)
	if _, err := shared.NewEmail(to); err != nil {
		return Message{}, err
	}
	if vars == nil {
		vars = map[string]string{}
	}
	return Message{Template: template, To: to, Vars: vars}, nil
}

// Sender delivers rendered emails.
type Sender interface {
	Send(ctx context.Context, template Template, to string, vars map[string]string) error
}
