package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var boardTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	boardTemplate = template.Must(template.New("board").Funcs(funcMap).Parse(boardTemplateHTML))
}

// TemplateData holds data for board template rendering
type TemplateData struct {
	Name      string
	Revision  int64
	UpdatedAt time.Time
	Columns   []TemplateColumn
}

// TemplateColumn holds column data for template
type TemplateColumn struct {
	Title string
	Cards []TemplateCard
}

// TemplateCard holds card data for template
type TemplateCard struct {
	Title       string
	Description string
}

// RenderBoardHTML renders the board template with provided data
func RenderBoardHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := boardTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const boardTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .column { margin: 1.5rem 0; }
    .column h2 { font-size: 1.1em; background: #eee; padding: 0.4rem 0.75rem; }
    .card { background: #f9f9f9; padding: 0.75rem 1rem; margin: 0.5rem 0; border-left: 3px solid #b4654a; page-break-inside: avoid; }
    .card h3 { margin: 0 0 0.25rem 0; font-size: 1em; }
    .card p { margin: 0; color: #444; }
    .empty { color: #999; font-style: italic; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  <div class="meta">Revision {{.Revision}} | {{.UpdatedAt.Format "Jan 2, 2006 15:04"}}</div>
  {{range .Columns}}
  <div class="column">
    <h2>{{.Title}}</h2>
    {{if .Cards}}{{range .Cards}}
    <div class="card">
      <h3>{{.Title}}</h3>
      {{if .Description}}<p>{{.Description}}</p>{{end}}
    </div>
    {{end}}{{else}}<p class="empty">No cards</p>{{end}}
  </div>
  {{end}}
</body>
</html>`
