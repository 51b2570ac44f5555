package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/session"
	"github.com/sassyweb/storefront/web"
)

// Engine renders HTML templates.
type Engine struct {
	pages map[string]*template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CurrentPath string
	User        *session.Record
	CSRFToken   string
	Data        any
}

var titleCaser = cases.Title(language.English)

// SlugToTitle turns a URL slug such as "skin-care" into "Skin Care".
func SlugToTitle(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	return titleCaser.String(strings.Join(words, " "))
}

// Slugify is the inverse of SlugToTitle for display names.
func Slugify(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// Can reports whether user may perform action on resource. Anonymous
// visitors may do nothing. Templates call it as {{if can .User "products" "delete"}}.
func Can(user *session.Record, resource permissions.Resource, action permissions.Action) bool {
	if user == nil {
		return false
	}
	return permissions.HasPermission(user.Role, resource, action)
}

// NewEngine parses the embedded layout, partials and one template set per
// page. Pages under pages/admin are keyed "pages/admin/<file>".
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"slugToTitle": SlugToTitle,
		"slugify":     Slugify,
		"join":        strings.Join,
		"add":         func(a, b int) int { return a + b },
		"sub":         func(a, b int) int { return a - b },
		"can":         Can,
	}
	var pages []string
	for _, pattern := range []string{"templates/pages/*.html", "templates/pages/admin/*.html"} {
		matches, err := fs.Glob(web.Templates, pattern)
		if err != nil {
			return nil, err
		}
		pages = append(pages, matches...)
	}
	engine := &Engine{pages: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		tpl, err := template.New(path.Base(page)).Funcs(funcMap).ParseFS(web.Templates,
			"templates/layouts/*.html", "templates/partials/*.html", page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		engine.pages[strings.TrimPrefix(page, "templates/")] = tpl
	}
	return engine, nil
}

// Render executes a page with status 200.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes the named page inside the base layout. Output is
// buffered so a template error never produces a half-written page.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	tpl, ok := e.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
