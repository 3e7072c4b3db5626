// Package render executes the embedded HTML page templates.
//
// Every page is parsed together with base.html and executed into a buffer first,
// so a template error never leaves a half-written response behind.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MGallo-Code/places/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page is the data every template receives.
type Page struct {
	Title     string
	User      *store.User // nil when anonymous
	Flashes   []string
	CSRFToken string
	Data      any
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"stars": func(avg *float64) string {
		if avg == nil {
			return "no ratings yet"
		}
		return fmt.Sprintf("%.1f / 5", *avg)
	},
}

// New parses every embedded page. Fails fast at startup on a broken template.
func New() (*Renderer, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	rd := &Renderer{pages: make(map[string]*template.Template, len(names))}
	for _, path := range names {
		name := strings.TrimPrefix(path, "templates/")
		if name == "base.html" {
			continue
		}
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/base.html", path)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		rd.pages[name] = tmpl
	}
	return rd, nil
}

// HTML renders page name with status.
func (rd *Renderer) HTML(w http.ResponseWriter, status int, name string, p Page) error {
	tmpl, ok := rd.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", p); err != nil {
		return fmt.Errorf("executing %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Error renders the generic error page for status. Falls back to plain text if
// the error page itself cannot be rendered.
func (rd *Renderer) Error(w http.ResponseWriter, status int) {
	err := rd.HTML(w, status, "error.html", Page{
		Title: http.StatusText(status),
		Data:  status,
	})
	if err != nil {
		slog.Error("rendering error page failed", "status", status, "error", err)
		http.Error(w, http.StatusText(status), status)
	}
}
