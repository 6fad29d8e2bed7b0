package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/yaml.v3"

	"ai-fitness-planner/internal/fitness"
)

//go:embed templates/plan.html
var templatesFS embed.FS

var planHTML = template.Must(template.New("plan.html").Funcs(template.FuncMap{
	"inc":      func(i int) int { return i + 1 },
	"calories": func(m fitness.MealPlan) int { return m.TotalCalories() },
}).ParseFS(templatesFS, "templates/plan.html"))

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatYAML     Format = "yaml"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "html", "htm":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// YAML renders the plan as a YAML document.
func YAML(p fitness.Plan) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode plan as yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode plan as yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// HTML renders the plan as a standalone page. Model text is escaped.
func HTML(p fitness.Plan) ([]byte, error) {
	var buf bytes.Buffer
	if err := planHTML.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("failed to render plan html: %w", err)
	}
	return buf.Bytes(), nil
}

// Render dispatches to the renderer for f. JSON is indented.
func Render(p fitness.Plan, f Format) ([]byte, error) {
	switch f {
	case FormatMarkdown:
		return []byte(Markdown(p)), nil
	case FormatYAML:
		return YAML(p)
	case FormatHTML:
		return HTML(p)
	case FormatJSON:
		return jsonIndent(p)
	}
	return nil, fmt.Errorf("unknown export format %q", f)
}
