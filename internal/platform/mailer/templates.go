package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/phrazzld/quill-api/internal/events"
)

// ErrUnknownTemplate is returned for a template name with no definition.
var ErrUnknownTemplate = errors.New("unknown email template")

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var definitions = map[string][2]string{
	events.TemplateWelcome: {
		"Welcome to Quill, {{.username}}",
		"Hi {{.username}},\n\nYour Quill account is ready. Start writing at {{.app_url}}.\n",
	},
	events.TemplatePasswordReset: {
		"Reset your Quill password",
		"Hi {{.username}},\n\nUse the link below to choose a new password. It expires in {{.expires_in}}.\n\n{{.reset_url}}\n\nIf you did not ask for this, ignore this email.\n",
	},
	events.TemplateBlogPublished: {
		"Your post \"{{.title}}\" is live",
		"Hi {{.username}},\n\nYour scheduled post \"{{.title}}\" has been published.\n",
	},
	events.TemplateBlogUnpublished: {
		"Your post \"{{.title}}\" is under review",
		"Hi {{.username}},\n\nYour post \"{{.title}}\" was unpublished by a moderator.\n\nReason: {{.reason}}\n",
	},
	events.TemplateBlogRepublished: {
		"Your post \"{{.title}}\" is published again",
		"Hi {{.username}},\n\nAfter review, your post \"{{.title}}\" has been published again.\n",
	},
	events.TemplateNewComment: {
		"New comment on \"{{.title}}\"",
		"Hi {{.username}},\n\n{{.commenter}} commented on your post \"{{.title}}\":\n\n{{.comment}}\n",
	},
	events.TemplateTicketReceived: {
		"We received your ticket: {{.subject}}",
		"Hi {{.username}},\n\nThanks for contacting support. Your ticket ({{.ticket_id}}) is open and we will reply soon.\n",
	},
	events.TemplateTicketUpdated: {
		"Update on your ticket: {{.subject}}",
		"Hi {{.username}},\n\nYour ticket is now {{.status}}.\n{{if .response}}\nResponse from support:\n{{.response}}\n{{end}}",
	},
}

// Renderer renders the named email templates.
type Renderer struct {
	templates map[string]emailTemplate
}

// NewRenderer parses every template definition.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]emailTemplate, len(definitions))}
	for name, def := range definitions {
		subject, err := template.New(name + ".subject").Option("missingkey=zero").Parse(def[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", name, err)
		}
		body, err := template.New(name + ".body").Option("missingkey=zero").Parse(def[1])
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", name, err)
		}
		r.templates[name] = emailTemplate{subject: subject, body: body}
	}
	return r, nil
}

// Render returns the subject and plain-text body of template name.
func (r *Renderer) Render(name string, data map[string]string) (string, string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	if data == nil {
		data = map[string]string{}
	}

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}
