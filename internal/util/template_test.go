package util

import (
	"strings"
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	state := map[string]any{
		"name":   "Ava",
		"topic":  "billing",
		"items":  []any{"a", "b"},
		"absent": nil,
	}

	out, err := RenderTemplate("Help {{.name}} with {{.topic}}.", state)
	if err != nil {
		t.Fatalf("RenderTemplate() error = %v", err)
	}
	if out != "Help Ava with billing." {
		t.Errorf("unexpected render: %q", out)
	}
}

func TestRenderTemplateNoMarkers(t *testing.T) {
	out, err := RenderTemplate("plain instruction", nil)
	if err != nil {
		t.Fatalf("RenderTemplate() error = %v", err)
	}
	if out != "plain instruction" {
		t.Errorf("fast path changed text: %q", out)
	}
}

func TestRenderTemplateFuncs(t *testing.T) {
	out, err := RenderTemplate(`{{default "guest" .name}} / {{join ", " .items}} / {{json .profile}}`, map[string]any{
		"name":    "",
		"items":   []any{"x", "y"},
		"profile": map[string]any{"tier": "pro"},
	})
	if err != nil {
		t.Fatalf("RenderTemplate() error = %v", err)
	}
	if out != `guest / x, y / {"tier":"pro"}` {
		t.Errorf("unexpected render: %q", out)
	}
}

func TestRenderTemplateMissingKey(t *testing.T) {
	out, err := RenderTemplate(`Known facts: {{default "none" .facts}}`, map[string]any{})
	if err != nil {
		t.Fatalf("RenderTemplate() error = %v", err)
	}
	if out != "Known facts: none" {
		t.Errorf("absent key must fall back through default, got %q", out)
	}
}

func TestRenderTemplateNoEscaping(t *testing.T) {
	out, err := RenderTemplate("{{.q}}", map[string]any{"q": `a < b && "c"`})
	if err != nil {
		t.Fatalf("RenderTemplate() error = %v", err)
	}
	if strings.Contains(out, "&lt;") || strings.Contains(out, "&amp;") {
		t.Errorf("prompt text was HTML escaped: %q", out)
	}
}

func TestCreateSchema(t *testing.T) {
	type args struct {
		City string  `json:"city" description:"City name"`
		Days int     `json:"days,omitempty"`
		Temp float64 `json:"temp"`
		Tags []string
	}

	schema := CreateSchema(args{})
	if schema["type"] != "object" {
		t.Fatalf("schema type = %v", schema["type"])
	}

	props := schema["properties"].(map[string]any)
	city := props["city"].(map[string]any)
	if city["type"] != "string" || city["description"] != "City name" {
		t.Errorf("city schema = %v", city)
	}
	if props["days"].(map[string]any)["type"] != "integer" {
		t.Errorf("days schema = %v", props["days"])
	}
	if props["temp"].(map[string]any)["type"] != "number" {
		t.Errorf("temp schema = %v", props["temp"])
	}
	tags := props["Tags"].(map[string]any)
	if tags["type"] != "array" || tags["items"].(map[string]any)["type"] != "string" {
		t.Errorf("tags schema = %v", tags)
	}

	required := schema["required"].([]string)
	for _, r := range required {
		if r == "days" {
			t.Errorf("omitempty field marked required: %v", required)
		}
	}
}
