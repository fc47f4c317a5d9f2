package marley

import (
	"bytes"
	"embed"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

//go:embed themes/default/*.html
var defaultTheme embed.FS

var themeFuncs = template.FuncMap{
	"humanDate": func(t time.Time) string { return t.Format("January 2 2006") },
	"rfcDate":   func(t time.Time) string { return t.UTC().Format("2006-01-02T15:04:05Z") },
	"gravatar":  func(c Comment, size int) string { return c.GravatarURL(size) },
	"percent":   func(f float64) string { return strconv.Itoa(int(f*100+0.5)) + "%" },
}

// Page is what theme templates render.
type Page struct {
	Config    *Config
	PageTitle string
	Posts     []*Post
	Post      *Post
	Related   []RelatedPost
	Comment   *Comment
	Errors    *ValidationError
	ThankYou  bool
}

// Theme is a set of page templates: index.html, post.html and 404.html.
type Theme struct {
	tmpl *template.Template
	dir  string
}

// LoadTheme parses the templates of dir. An empty or missing dir loads the
// built-in theme.
func LoadTheme(dir string) (*Theme, error) {
	if dir != "" {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			t, err := template.New("").Funcs(themeFuncs).ParseGlob(filepath.Join(dir, "*.html"))
			if err != nil {
				return nil, errors.Wrapf(err, "parse theme %s", dir)
			}
			return &Theme{tmpl: t, dir: dir}, nil
		}
	}
	t, err := template.New("").Funcs(themeFuncs).ParseFS(defaultTheme, "themes/default/*.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse built-in theme")
	}
	return &Theme{tmpl: t}, nil
}

// Render executes the template name.
func (t *Theme) Render(name string, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, errors.Wrapf(err, "render %s", name)
	}
	return buf.Bytes(), nil
}

// CacheKey changes whenever a template file of the theme changes.
func (t *Theme) CacheKey() string {
	if t.dir == "" {
		return "builtin"
	}
	files, _ := filepath.Glob(filepath.Join(t.dir, "*"))
	var latest int64
	for _, f := range files {
		if fi, err := os.Stat(f); err == nil && fi.ModTime().Unix() > latest {
			latest = fi.ModTime().Unix()
		}
	}
	return strconv.FormatInt(latest, 10)
}
