package echoapi

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/core/user"
)

const (
	csrfField      = "csrf"
	csrfContextKey = "csrf"
	layoutTemplate = "layout"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// page is what every web template receives.
type page struct {
	Title  string
	Form   interface{}       // values to put back in the form
	Errors map[string]string // {field: message}; "" holds form-wide errors
	Data   interface{}

	// set by the renderer
	User    *user.User
	CSRF    string
	Flashes []flash
	Path    string
}

// FieldError returns the error message of a form field.
func (p *page) FieldError(field string) string {
	return p.Errors[field]
}

// Renderer renders the web templates. Each page is parsed together with the shared "_*" files.
type Renderer struct {
	templates map[string]*template.Template
}

var _ echo.Renderer = (*Renderer)(nil)

func NewRenderer(fsys fs.FS, dir string) (*Renderer, error) {
	fps, err := fs.Glob(fsys, path.Join(dir, "*.gohtml"))
	if err != nil {
		return nil, errors.Wrap(err, "globbing templates")
	}

	var shared, pages []string
	for _, fp := range fps {
		if strings.HasPrefix(path.Base(fp), "_") {
			shared = append(shared, fp)
		} else {
			pages = append(pages, fp)
		}
	}

	r := &Renderer{templates: make(map[string]*template.Template, len(pages))}
	for _, fp := range pages {
		name := strings.TrimSuffix(path.Base(fp), ".gohtml")
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(fsys, append(shared, fp)...)
		if err != nil {
			return nil, errors.Wrap(err, "parsing "+fp)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, ctx echo.Context) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return errors.Errorf("template %q not found", name)
	}
	if p, ok := data.(*page); ok {
		if usr, ok := getContextUser(ctx); ok {
			p.User = &usr
		}
		p.CSRF, _ = ctx.Get(csrfContextKey).(string)
		p.Flashes = popFlashes(ctx)
		p.Path = ctx.Request().URL.Path
	}
	return tmpl.ExecuteTemplate(w, layoutTemplate, data)
}

var templateFuncs = template.FuncMap{
	"markdown": renderMarkdown,
	// safe marks HTML produced by the content service as trusted.
	"safe": func(s string) template.HTML { return template.HTML(s) },
	"date": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
	"score": func(score *int) string {
		if score == nil {
			return "Not graded"
		}
		return strconv.Itoa(*score)
	},
	"percentage": func(sd coursework.SubmissionDetail) string {
		if pct, ok := sd.Percentage(); ok {
			return fmt.Sprintf("%.2f%%", pct)
		}
		return "-"
	},
	"inc": func(i int) int { return i + 1 },
}

// renderMarkdown renders note content. Raw HTML in the source is escaped.
func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}
