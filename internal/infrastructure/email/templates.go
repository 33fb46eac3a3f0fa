package email

import (
	"strings"
	"text/template"

	"github.com/pdportal/pd-portal/internal/domain/notification"
)

// Rendered is an email after template expansion.
type Rendered struct {
	Subject string
	Body    string
}

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

// Missing variables render as empty strings.
var templates = map[notification.Template]emailTemplate{
	notification.TemplateRegistrationConfirmation: mustTemplate(
		"registration_confirmation",
		`You're registered: {{.session_title}}`,
		`Hi {{.first_name}},

You are registered for "{{.session_title}}" on {{.session_date}} from {{.start_time}} to {{.end_time}}.
{{- if .location}}
Location: {{.location}}
{{- end}}

See you there.
`),
	notification.TemplateAchievementUnlocked: mustTemplate(
		"achievement_unlocked",
		`Achievement unlocked: {{.title}}`,
		`Hi {{.first_name}},

You unlocked "{{.title}}". {{.description}}

Keep it going.
`),
}

func mustTemplate(name, subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New(name + ".subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(name + ".body").Option("missingkey=zero").Parse(body)),
	}
}

// Render expands tpl with vars.
func Render(tpl notification.Template, vars map[string]string) (Rendered, error) {
	t, ok := templates[tpl]
	if !ok {
		return Rendered{}, notificationError(tpl)
	}

	var subject, body strings.Builder
	if err := t.subject.Execute(&subject, vars); err != nil {
		return Rendered{}, err
	}
	if err := t.body.Execute(&body, vars); err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject.String(), Body: body.String()}, nil
}
