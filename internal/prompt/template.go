package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	},
	"join": strings.Join,
	"level": func(v float64) string {
		switch {
		case v >= 8:
			return "very high"
		case v >= 6:
			return "high"
		case v >= 4:
			return "moderate"
		case v >= 2:
			return "low"
		default:
			return "very low"
		}
	},
	"trim": strings.TrimSpace,
}

// Render executes text as a text/template against data.
// This lives in internal to avoid committing to public API stability prematurely.
func Render(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(funcs).Parse(text)
	if err != nil {
		return "", err
	}
	return execute(tmpl, data)
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func must(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}
