package marley

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/tangzero/inflector"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v2"
)

var (
	// 001-slug, slug
	idPattern = regexp.MustCompile(`^[0-9]{0,4}-?(.*)$`)
	// jan-5-2009-10-30
	stampPattern = regexp.MustCompile(`[a-z]{3}-[0-9]{1,2}-[0-9]{4}-[0-9]{2}-[0-9]{2}`)
	// {{ ... }} block of YAML metadata
	metaPattern = regexp.MustCompile(`(?ms)^\{\{\n(.*?)\}\}\n?`)
	// Title (12/05/2009)
	titleDatePattern = regexp.MustCompile(`^(.*?)\s+\(([0-9/]+)\)$`)
)

const stampLayout = "Jan-2-2006-15-04"

// PostMeta is the typed part of an article's metadata block.
type PostMeta struct {
	Categories []string `mapstructure:"categories"`
}

// Post is one article read from the data directory.
type Post struct {
	ID           string
	Title        string
	TitleDate    string
	Perex        string
	Body         string
	FullBody     string
	PerexHTML    template.HTML
	BodyHTML     template.HTML
	FullBodyHTML template.HTML
	Meta         map[string]interface{}
	PublishedOn  time.Time
	UpdatedOn    time.Time
	Published    bool
	Dir          string
	File         string

	// Comments holds the approved comments, attached by Blog.
	Comments []Comment

	categories []string
}

// Categories returns the categories listed in the metadata block.
func (p *Post) Categories() []string { return p.categories }

// Permalink is the article's URL path.
func (p *Post) Permalink() string { return "/" + p.ID + ".html" }

// CacheKey identifies a rendering of the post under a theme layout and a
// comments generation.
func (p *Post) CacheKey(layoutKey, commentsKey string) string {
	return "post/" + p.ID + "/" + layoutKey + "/" + commentsKey + "/" + strconv.FormatInt(p.UpdatedOn.Unix(), 10)
}

// DocumentID implements Document.
func (p *Post) DocumentID() string { return p.ID }

// Field implements Document.
func (p *Post) Field(name string) (string, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "title":
		return p.Title, true
	case "perex":
		return p.Perex, true
	case "body":
		return p.Body, true
	case "full_body":
		return p.FullBody, true
	case "perex_html":
		return string(p.PerexHTML), true
	case "body_html":
		return string(p.BodyHTML), true
	case "full_body_html":
		return string(p.FullBodyHTML), true
	case "text":
		return PlainText(string(p.FullBodyHTML)), true
	}
	return "", false
}

// FindOptions selects articles.
type FindOptions struct {
	Drafts   bool   // include .draft directories
	Limit    int    // 0 means all
	Matching string // case-insensitive substring of title or id
}

// PostStore reads articles from a data directory: one directory per
// article, the first .txt file inside it is the article text.
type PostStore struct {
	dir string
	loc *time.Location
	md  goldmark.Markdown
	now func() time.Time
}

// NewPostStore creates a PostStore over dir. Publish stamps in directory
// names are read in loc (UTC when nil).
func NewPostStore(dir string, loc *time.Location) *PostStore {
	if loc == nil {
		loc = time.UTC
	}
	return &PostStore{
		dir: dir,
		loc: loc,
		md:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
		now: time.Now,
	}
}

// Dir is the data directory.
func (s *PostStore) Dir() string { return s.dir }

// Find returns articles newest first.
func (s *PostStore) Find(opts FindOptions) ([]*Post, error) {
	dirs, err := s.directories(opts.Drafts)
	if err != nil {
		return nil, err
	}
	match := strings.ToLower(opts.Matching)
	var posts []*Post
	for i := len(dirs) - 1; i >= 0; i-- {
		if opts.Limit > 0 && len(posts) == opts.Limit {
			break
		}
		file, ok := articleFile(dirs[i])
		if !ok {
			continue
		}
		p, err := s.load(file)
		if err != nil {
			return nil, err
		}
		if match != "" && !strings.Contains(strings.ToLower(p.Title), match) && !strings.Contains(strings.ToLower(p.ID), match) {
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// Published returns up to limit published articles, newest first.
func (s *PostStore) Published(limit int) ([]*Post, error) {
	return s.Find(FindOptions{Limit: limit})
}

// Get returns the article with id, drafts included.
func (s *PostStore) Get(id string) (*Post, error) {
	dirs, err := s.directories(true)
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		if postID(filepath.Base(d)) != id {
			continue
		}
		file, ok := articleFile(d)
		if !ok {
			break
		}
		return s.load(file)
	}
	return nil, errors.Wrap(ErrPostNotFound, id)
}

// Named runs the named finder name when it is one of finders: "screencasts"
// lists published articles whose title or id mentions "screencast".
func (s *PostStore) Named(name string, finders []string, limit int) ([]*Post, bool, error) {
	known := false
	for _, f := range finders {
		if f == name {
			known = true
			break
		}
	}
	if !known {
		return nil, false, nil
	}
	match := inflector.Singularize(strings.ReplaceAll(name, "_", " "))
	posts, err := s.Find(FindOptions{Limit: limit, Matching: match})
	return posts, true, err
}

// FindFile looks for an attachment called name in every article directory.
func (s *PostStore) FindFile(name string) (string, bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(s.dir, e.Name(), name)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// directories lists article directories in name order, hiding drafts unless
// asked and anything stamped in the future.
func (s *PostStore) directories(drafts bool) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read data directory %s", s.dir)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if !drafts && strings.Contains(name, ".draft") {
			continue
		}
		if t, ok := s.stamp(name); ok && !t.Before(s.now()) {
			continue
		}
		dirs = append(dirs, filepath.Join(s.dir, name))
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (s *PostStore) stamp(dirname string) (time.Time, bool) {
	m := stampPattern.FindString(dirname)
	if m == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(stampLayout, m, s.loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func articleFile(dir string) (string, bool) {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.txt"))
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

// postID strips the ordering prefix, the draft marker and the publish stamp.
func postID(dirname string) string {
	id := idPattern.FindStringSubmatch(dirname)[1]
	id = strings.TrimSuffix(id, ".draft")
	if loc := stampPattern.FindStringIndex(id); loc != nil && loc[0] > 0 && id[loc[0]-1] == '.' {
		id = id[:loc[0]-1] + id[loc[1]:]
	}
	return id
}

func (s *PostStore) load(file string) (*Post, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read post %s", file)
	}
	fi, err := os.Stat(file)
	if err != nil {
		return nil, errors.Wrapf(err, "stat post %s", file)
	}
	dir := filepath.Dir(file)
	dirname := filepath.Base(dir)

	p := &Post{
		ID:        postID(dirname),
		Dir:       dir,
		File:      file,
		UpdatedOn: fi.ModTime(),
		Published: !strings.HasSuffix(dirname, ".draft"),
	}
	if t, ok := s.stamp(dirname); ok {
		p.PublishedOn = t
	} else if di, err := os.Stat(dir); err == nil {
		p.PublishedOn = di.ModTime()
	}

	c, err := parseContent(string(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "parse post %s", file)
	}
	p.Title, p.TitleDate = c.title, c.titleDate
	p.Perex, p.Body, p.FullBody = c.perex, c.body, c.fullBody
	p.Meta = c.meta
	p.PerexHTML = s.render(p.Perex)
	p.BodyHTML = s.render(p.Body)
	p.FullBodyHTML = s.render(p.FullBody)

	if p.Meta != nil {
		var meta PostMeta
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{WeaklyTypedInput: true, Result: &meta})
		if err != nil {
			return nil, errors.Wrap(err, "meta decoder")
		}
		if err := dec.Decode(p.Meta); err != nil {
			return nil, errors.Wrapf(err, "decode meta of %s", file)
		}
		p.categories = meta.Categories
	}
	return p, nil
}

func (s *PostStore) render(src string) template.HTML {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

type content struct {
	title, titleDate      string
	perex, body, fullBody string
	meta                  map[string]interface{}
}

// parseContent splits an article into metadata, title, perex and body.
// The title is the first line starting with '#'; the perex is the first
// paragraph after it.
func parseContent(raw string) (content, error) {
	var c content
	text := strings.ReplaceAll(raw, "\r\n", "\n")

	if m := metaPattern.FindStringSubmatchIndex(text); m != nil {
		if err := yaml.Unmarshal([]byte(text[m[2]:m[3]]), &c.meta); err != nil {
			return c, errors.Wrap(err, "meta block")
		}
		text = text[:m[0]] + text[m[1]:]
	}

	lines := strings.Split(text, "\n")
	rest := lines
	for i, l := range lines {
		if strings.HasPrefix(l, "#") {
			c.title = strings.TrimSpace(strings.TrimLeft(l, "#"))
			rest = append(append([]string{}, lines[:i]...), lines[i+1:]...)
			break
		}
	}
	if m := titleDatePattern.FindStringSubmatch(c.title); m != nil {
		c.title, c.titleDate = m[1], m[2]
	}

	c.fullBody = strings.TrimSpace(strings.Join(rest, "\n"))
	if c.fullBody == "" || strings.HasPrefix(c.fullBody, "#") {
		c.body = c.fullBody
		return c, nil
	}
	if i := strings.Index(c.fullBody, "\n\n"); i >= 0 {
		c.perex = strings.TrimSpace(c.fullBody[:i])
		c.body = strings.TrimSpace(c.fullBody[i:])
	} else {
		c.perex = c.fullBody
	}
	return c, nil
}
