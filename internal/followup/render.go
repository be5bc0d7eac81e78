package followup

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/dealseek/ma-pilot/internal/application"
)

const defaultBodyTemplate = `Dear Hiring Manager,

I hope this message finds you well. I wanted to follow up on my recent
application for the {{.Title}} position at {{.Company}}.

I remain very interested in the opportunity and would welcome the chance to
discuss how my experience in financial modeling, due diligence, and deal
execution can add value to your team. I am happy to provide any additional
information you might need.

Thank you for your time and consideration.

Best regards,
{{.Applicant}}`

// Message is a rendered follow-up email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Renderer turns an application into a follow-up message from a template.
type Renderer struct {
	tmpl      *template.Template
	applicant string
	// fallbackTo receives follow-ups when the posting carried no contact
	// address, typically the applicant's own inbox for manual forwarding.
	fallbackTo string
}

// NewRenderer parses bodyTemplate (the built-in one when empty).
func NewRenderer(bodyTemplate, applicant, fallbackTo string) (*Renderer, error) {
	if bodyTemplate == "" {
		bodyTemplate = defaultBodyTemplate
	}
	tmpl, err := template.New("followup").Parse(bodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse follow-up template: %w", err)
	}
	return &Renderer{tmpl: tmpl, applicant: applicant, fallbackTo: fallbackTo}, nil
}

func (r *Renderer) Render(_ context.Context, app *application.Application) (Message, error) {
	var body bytes.Buffer
	err := r.tmpl.Execute(&body, map[string]string{
		"Title":     app.Title,
		"Company":   app.Company,
		"Applicant": r.applicant,
	})
	if err != nil {
		return Message{}, fmt.Errorf("execute follow-up template: %w", err)
	}

	return Message{
		To:      r.fallbackTo,
		Subject: fmt.Sprintf("Following up on %s application", app.Title),
		Body:    body.String(),
	}, nil
}
