package web

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"login", "register", "lobby", "play"}

var funcs = template.FuncMap{
	"when": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
	"join": func(names []string) string {
		var b bytes.Buffer
		for i, n := range names {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(n)
		}
		return b.String()
	},
}

type views struct {
	pages map[string]*template.Template
}

func loadViews() (*views, error) {
	v := &views{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		v.pages[name] = t
	}
	return v, nil
}

// page is the data every template receives.
type page struct {
	Title string
	User  *principal
	Flash string
	Error string
	Data  any
}

func (v *views) render(w http.ResponseWriter, status int, name string, p page) {
	var buf bytes.Buffer
	if err := v.pages[name].ExecuteTemplate(&buf, "layout", p); err != nil {
		slog.Error("render failed", "tag", "http", "page", name, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
