package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// RenderTemplate expands {{.key}} placeholders in an instruction against the
// session state. Instructions are plain prompt text, so no HTML escaping is
// applied. Absent keys evaluate as zero values instead of failing the render;
// pair them with the default helper when a prior turn may not have written
// the key yet.
//
// Helpers available inside templates:
//
//	default  fallback for empty or absent values: {{default "unknown" .city}}
//	join     flatten a list-valued key:           {{join ", " .findings}}
//	json     inline a structured value:           {{json .profile}}
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("instruction").Funcs(template.FuncMap{
		"default": func(fallback any, val any) any {
			if val == nil || val == "" {
				return fallback
			}
			return val
		},
		"join": func(sep string, items []any) string {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = fmt.Sprintf("%v", item)
			}
			return strings.Join(parts, sep)
		},
		"json": func(val any) (string, error) {
			b, err := json.Marshal(val)
			if err != nil {
				return "", fmt.Errorf("render json value: %w", err)
			}
			return string(b), nil
		},
	}).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", err
	}

	return buf.String(), nil
}
