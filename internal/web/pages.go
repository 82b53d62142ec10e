package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/pjsk-record/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// RecordTimeLayout renders submission times on every page
const RecordTimeLayout = "02 Jan 2006 15:04:05 UTC"

const (
	pageHome    = "home.html"
	pageError   = "error.html"
	pageForm    = "form.html"
	pageSuccess = "success.html"
	pageRecent  = "recent.html"
)

var templateFuncs = template.FuncMap{
	"utc": func(t int64) string {
		return time.Unix(t, 0).UTC().Format(RecordTimeLayout)
	},
	"ago": func(t int64) string {
		return humanize.Time(time.Unix(t, 0))
	},
	"percent": func(f float64) string {
		return fmt.Sprintf("%.2f%%", f*100)
	},
	"fixed": func(f float64) string {
		return fmt.Sprintf("%.2f", f)
	},
	"pathEscape": url.PathEscape,
	"recordPath": recordPath,
}

// recordPath is the URL of a stored record, without a trailing slash
func recordPath(r *store.Record) string {
	return fmt.Sprintf("/record/%d/%s", r.Time, url.PathEscape(r.User))
}

type pages map[string]*template.Template

func loadPages() (pages, error) {
	p := make(pages)
	for _, name := range []string{pageHome, pageError, pageForm, pageSuccess, pageRecent} {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		p[name] = t
	}
	return p, nil
}

// render executes the page into a buffer first so a template error never
// leaves a half-written response
func (p pages) render(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := p[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
	return nil
}

type errorView struct {
	Message string
}

type difficultyOption struct {
	Label string
	Level int
}

type formDefaults struct {
	Difficulty string
	User       string
	Great      int
	Good       int
	Bad        int
	Miss       int
}

type formView struct {
	MusicID      int
	Title        string
	Action       string
	Editing      bool
	Difficulties []difficultyOption
	Default      formDefaults
}

type recentView struct {
	User    string
	Records []*store.Record
}
