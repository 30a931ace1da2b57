package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template holds the render sources for every delivery surface. Short
// is the chat-webhook one-liner.
type Template struct {
	Subject string
	HTML    string
	Text    string
	Short   string
}

type Rendered struct {
	Subject string
	HTML    string
	Text    string
	Short   string
}

var templates = map[string]Template{
	"sla_breach": {
		Subject: "SLA breach: {{.priority}} ticket {{.ticket_id}}",
		HTML:    "<p>Ticket <b>{{.ticket_id}}</b> ({{.priority}}) breached its {{.breach_type}} SLA target.</p>",
		Text:    "Ticket {{.ticket_id}} ({{.priority}}) breached its {{.breach_type}} SLA target.",
		Short:   "SLA breach: {{.breach_type}} target missed on {{.priority}} ticket {{.ticket_id}}",
	},
	"health_declining": {
		Subject: "Health declining: {{.application_name}}",
		HTML:    "<p>Application <b>{{.application_name}}</b> dropped to {{.overall}}.</p>",
		Text:    "Application {{.application_name}} dropped to {{.overall}}.",
		Short:   "Health declining: {{.application_name}} at {{.overall}}",
	},
	"cloud_sync_failed": {
		Subject: "Cloud sync failed: {{.account_name}}",
		HTML:    "<p>Sync for account <b>{{.account_name}}</b> ({{.provider}}) failed: {{.error}}</p>",
		Text:    "Sync for account {{.account_name}} ({{.provider}}) failed: {{.error}}",
		Short:   "Cloud sync failed for {{.account_name}} ({{.provider}})",
	},
}

var genericTemplate = Template{
	Subject: "Notification from {{.tenant_slug}}",
	HTML:    "<p>{{.message}}</p>",
	Text:    "{{.message}}",
	Short:   "{{.message}}",
}

// Lookup never fails; unknown keys fall back to the generic template.
func Lookup(key string) Template {
	if t, ok := templates[key]; ok {
		return t
	}
	return genericTemplate
}

func (t Template) Render(data map[string]any) (Rendered, error) {
	var out Rendered
	fields := []struct {
		src  string
		dest *string
	}{
		{t.Subject, &out.Subject},
		{t.HTML, &out.HTML},
		{t.Text, &out.Text},
		{t.Short, &out.Short},
	}
	for _, f := range fields {
		rendered, err := renderOne(f.src, data)
		if err != nil {
			return Rendered{}, err
		}
		*f.dest = rendered
	}
	return out, nil
}

func renderOne(src string, data map[string]any) (string, error) {
	tmpl, err := template.New("").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
