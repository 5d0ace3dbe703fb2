package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Templates holds all page templates, keyed by page name. Each page
// gets its own clone of the layout so {{define "content"}} blocks
// don't collide between pages.
type Templates struct {
	pages map[string]*template.Template
}

func LoadTemplates() (*Templates, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("02 Jan 2006")
		},
	}

	layout, err := template.New("layout").Funcs(funcMap).ParseFS(templateFiles, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout template: %w", err)
	}

	pages := make(map[string]*template.Template)
	for _, page := range []string{"index", "login", "register", "dashboard", "admin", "plan"} {
		pageTmpl, err := template.Must(layout.Clone()).ParseFS(templateFiles, "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", page, err)
		}
		pages[page] = pageTmpl
	}

	return &Templates{pages: pages}, nil
}

// Render writes a page template by name, wrapped in the layout.
func (t *Templates) Render(w io.Writer, name string, data any) error {
	tmpl, ok := t.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}
