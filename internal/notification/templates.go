// internal/notification/templates.go

package notifications

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/imadgeboyega/kiekky-matchmaking/internal/suggestion"
)

// messageTemplate is the title and body source for one kind
type messageTemplate struct {
	Title string
	Body  string
}

var defaultTemplates = map[string]messageTemplate{
	suggestion.TemplateSuggestionReceived: {
		Title: "You have a new match suggestion 💌",
		Body:  "{{with .name}}{{.}}, y{{else}}Y{{end}}our matchmaker has a suggestion for you.{{with .matching_reason}} {{.}}{{end}} Please respond by {{.response_deadline}}.",
	},
	suggestion.TemplateStatusChanged: {
		Title: "Suggestion update",
		Body:  "Suggestion {{.suggestion_id}} moved from {{.previous_status}} to {{.status}}.",
	},
	suggestion.TemplateDeclined: {
		Title: "A suggestion was declined",
		Body:  "Suggestion {{.suggestion_id}} is now {{.status_label}}.",
	},
	suggestion.TemplateWaitlisted: {
		Title: "Interest saved for later ⏳",
		Body:  "Suggestion {{.suggestion_id}} was added to the first party's waitlist.",
	},
	suggestion.TemplateContactShared: {
		Title: "It's a match! 💕",
		Body:  "{{with .name}}{{.}}, b{{else}}B{{end}}oth of you said yes. Contact details are now shared.",
	},
	suggestion.TemplateFeedbackReceived: {
		Title: "First date feedback received",
		Body:  "Feedback arrived for suggestion {{.suggestion_id}}. Current status: {{.status}}.",
	},
	suggestion.TemplateExpired: {
		Title: "Suggestion expired",
		Body:  "Suggestion {{.suggestion_id}} expired without a response.",
	},
}

// Renderer fills message templates from a notification payload
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses the default templates. overrides replace defaults by kind.
func NewRenderer(overrides map[string]messageTemplate) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}

	sources := make(map[string]messageTemplate, len(defaultTemplates))
	for kind, t := range defaultTemplates {
		sources[kind] = t
	}
	for kind, t := range overrides {
		sources[kind] = t
	}

	for kind, src := range sources {
		tmpl, err := template.New(kind).Option("missingkey=zero").Parse(src.Title)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s title: %w", kind, err)
		}
		if _, err := tmpl.New("body").Parse(src.Body); err != nil {
			return nil, fmt.Errorf("failed to parse %s body: %w", kind, err)
		}
		r.templates[kind] = tmpl
	}

	return r, nil
}

// Render renders kind for data. Missing keys render empty.
func (r *Renderer) Render(kind string, data map[string]string) (*Rendered, error) {
	tmpl, ok := r.templates[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, kind)
	}

	var title, body bytes.Buffer
	if err := tmpl.Execute(&title, data); err != nil {
		return nil, fmt.Errorf("failed to render title: %w", err)
	}
	if err := tmpl.ExecuteTemplate(&body, "body", data); err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}

	return &Rendered{Title: title.String(), Body: body.String()}, nil
}
