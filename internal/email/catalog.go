package email

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

// ErrUnknownTemplate is returned for a template name missing from the catalog.
var ErrUnknownTemplate = errors.New("unknown email template")

//go:embed templates.yaml
var defaultTemplates []byte

// Template is one catalog entry. Subject and Text are rendered as plain
// text, HTML with contextual escaping.
type Template struct {
	Subject string `yaml:"subject"`
	Text    string `yaml:"text"`
	HTML    string `yaml:"html"`
}

// Rendered is a template filled with its parameters.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

// Catalog maps template names to templates.
type Catalog struct {
	templates map[string]Template
}

// ParseCatalog reads a YAML document of name: {subject, text, html} entries.
func ParseCatalog(data []byte) (*Catalog, error) {
	var templates map[string]Template
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	for name, tmpl := range templates {
		if tmpl.Subject == "" || tmpl.HTML == "" {
			return nil, fmt.Errorf("email template %s: subject and html are required", name)
		}
	}
	return &Catalog{templates: templates}, nil
}

// DefaultCatalog returns the built-in confirmation templates.
func DefaultCatalog() *Catalog {
	catalog, err := ParseCatalog(defaultTemplates)
	if err != nil {
		panic(err)
	}
	return catalog
}

// Names lists the catalog's template names in order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render fills the named template. params is flattened through its JSON form
// so templates address fields by their JSON names.
func (c *Catalog) Render(name string, params any) (Rendered, error) {
	tmpl, ok := c.templates[name]
	if !ok {
		return Rendered{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	data, err := templateData(params)
	if err != nil {
		return Rendered{}, fmt.Errorf("template %s params: %w", name, err)
	}

	subject, err := renderText(tmpl.Subject, data)
	if err != nil {
		return Rendered{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	text := ""
	if tmpl.Text != "" {
		if text, err = renderText(tmpl.Text, data); err != nil {
			return Rendered{}, fmt.Errorf("render %s text: %w", name, err)
		}
	}
	html, err := renderTemplate(tmpl.HTML, data)
	if err != nil {
		return Rendered{}, fmt.Errorf("render %s html: %w", name, err)
	}
	return Rendered{Subject: subject, Text: text, HTML: html}, nil
}

func templateData(params any) (any, error) {
	if params == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func renderText(tmpl string, data any) (string, error) {
	t, err := texttemplate.New("text").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
