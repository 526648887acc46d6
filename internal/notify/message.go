package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"ticketwatch/pkg/domain"
	"time"
)

// EvidenceFilename is the attachment name of the captured region image.
const EvidenceFilename = "tickets_page.png"

const timeLayout = "2006-01-02 15:04:05 MST"

const subject = "Ticket site updated!"

const textTemplate = `Changes have been made to the ticket website!

{{.URL}}
{{if .HasEvidence}}
Page image attached.
{{- end}}
Change detected at {{.DetectedAt | when}} (check #{{.Cycle}})
{{- if .Changes}}

What changed:
{{range .Changes}}  {{.}}
{{end}}
{{- end}}
`

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <title>Ticket site updated</title>
</head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #111827;">
  <h2>Changes have been made to the ticket website!</h2>
  <p><a href="{{.URL}}">{{.URL}}</a></p>
  <p>Change detected at {{.DetectedAt | when}} (check #{{.Cycle}}).</p>
  {{- if .HasEvidence}}
  <p>Page image attached.</p>
  {{- end}}
  {{- if .Changes}}
  <pre style="background: #f3f4f6; padding: 12px;">{{range .Changes}}{{.}}
{{end}}</pre>
  {{- end}}
</body>
</html>
`

const smsTemplate = `The ticket page has been updated. Checked: {{.DetectedAt | when}}
{{.URL}}`

// Message is a rendered notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Renderer turns notification events into message bodies.
type Renderer struct {
	text *template.Template
	html *htmltemplate.Template
	sms  *template.Template
}

// NewRenderer parses the built-in templates.
func NewRenderer() *Renderer {
	funcs := map[string]any{"when": func(t time.Time) string { return t.Format(timeLayout) }}

	return &Renderer{
		text: template.Must(template.New("text").Funcs(funcs).Parse(textTemplate)),
		html: htmltemplate.Must(htmltemplate.New("html").Funcs(funcs).Parse(htmlTemplate)),
		sms:  template.Must(template.New("sms").Funcs(funcs).Parse(smsTemplate)),
	}
}

// Email renders the subject and both bodies of the email notification.
func (r *Renderer) Email(event domain.NotificationEvent) (Message, error) {
	var text, html bytes.Buffer
	if err := r.text.Execute(&text, event); err != nil {
		return Message{}, fmt.Errorf("could not render text body: %w", err)
	}
	if err := r.html.Execute(&html, event); err != nil {
		return Message{}, fmt.Errorf("could not render html body: %w", err)
	}

	return Message{Subject: subject, Text: text.String(), HTML: html.String()}, nil
}

// SMS renders the short text message.
func (r *Renderer) SMS(event domain.NotificationEvent) (string, error) {
	var b strings.Builder
	if err := r.sms.Execute(&b, event); err != nil {
		return "", fmt.Errorf("could not render sms: %w", err)
	}

	return b.String(), nil
}
