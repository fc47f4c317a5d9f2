package marley

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type server struct {
	blog   *Blog
	logger *slog.Logger
}

// NewMux serves the blog: article pages and listings, feeds, comments,
// attachments and the related articles JSON API. Library-only: does not
// start the server by itself.
func NewMux(blog *Blog, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{blog: blog, logger: logger}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /feed", s.handleFeed)
	mux.HandleFunc("GET /feed/comments", s.handleCommentsFeed)
	mux.HandleFunc("GET /popular/{$}", s.handlePopular)
	mux.HandleFunc("GET /about", s.handleAbout)
	mux.HandleFunc("GET /posts/{file}", Download(blog.Posts))

	// /<id>.html, /<id>/comments, /<id>/feed, /<id>/related and /<name>/
	// overlap with the fixed routes above, so they are matched here.
	mux.HandleFunc("/", s.dispatch)

	return logRequests(mux, logger)
}

func (s *server) dispatch(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(r.URL.Path, "/")
	get := r.Method == http.MethodGet || r.Method == http.MethodHead

	if id, ok := strings.CutSuffix(p, ".html"); ok && id != "" && !strings.Contains(id, "/") {
		if !get {
			s.methodNotAllowed(w, "GET, HEAD")
			return
		}
		s.handlePost(w, r, id)
		return
	}

	id, action, ok := strings.Cut(p, "/")
	if !ok || id == "" || strings.Contains(action, "/") {
		s.notFound(w, r)
		return
	}
	switch {
	case action == "comments" && r.Method == http.MethodPost:
		s.handleCreateComment(w, r, id)
	case action == "comments" && get:
		http.Redirect(w, r, "/"+id+".html#comments", http.StatusFound)
	case action == "feed" && get:
		s.handlePostFeed(w, r, id)
	case action == "related" && get:
		s.handleRelated(w, r, id)
	case action == "" && get:
		s.handleNamed(w, r, id)
	case action == "comments":
		s.methodNotAllowed(w, "GET, HEAD, POST")
	case action == "feed" || action == "related" || action == "":
		s.methodNotAllowed(w, "GET, HEAD")
	default:
		s.notFound(w, r)
	}
}

// --- Pages ---

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	posts, err := s.blog.Posts.Published(s.blog.Config.PostsPerPage)
	if err != nil {
		s.fail(w, "list posts", err)
		return
	}
	s.renderList(w, r, "index", s.blog.Config.Blog.Title, posts)
}

func (s *server) handlePopular(w http.ResponseWriter, r *http.Request) {
	posts, err := s.blog.Popular(r.Context(), 0)
	if err != nil {
		s.fail(w, "popular posts", err)
		return
	}
	s.renderList(w, r, "popular", s.blog.Config.Blog.Title+" popular", posts)
}

func (s *server) handleNamed(w http.ResponseWriter, r *http.Request, name string) {
	posts, ok, err := s.blog.Posts.Named(name, s.blog.Config.Finders, 0)
	if err != nil {
		s.fail(w, "named finder", err)
		return
	}
	if !ok {
		s.notFound(w, r)
		return
	}
	s.renderList(w, r, name, s.blog.Config.Blog.Title+" "+name, posts)
}

func (s *server) renderList(w http.ResponseWriter, r *http.Request, name, title string, posts []*Post) {
	ctx := r.Context()
	key, err := s.blog.PostsCacheKey(ctx, name, posts)
	if err != nil {
		s.fail(w, "page cache key", err)
		return
	}
	body, err := Cached(s.blog.Cache, key, s.logger, func() ([]byte, error) {
		if err := s.blog.AttachComments(ctx, posts...); err != nil {
			return nil, err
		}
		return s.blog.Theme.Render("index.html", Page{Config: s.blog.Config, PageTitle: title, Posts: posts})
	})
	if err != nil {
		s.fail(w, "render "+name, err)
		return
	}
	writeHTML(w, http.StatusOK, body)
}

func (s *server) handlePost(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	post, err := s.blog.Posts.Get(id)
	if errors.Is(err, ErrPostNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, "load post", err)
		return
	}

	if err := s.blog.TopPosts.Hit(ctx, post.ID); err != nil {
		s.logger.Warn("record hit", "post", post.ID, "err", err)
	}

	commentsKey, err := s.blog.Comments.CacheKey(ctx)
	if err != nil {
		s.fail(w, "comments cache key", err)
		return
	}
	key := post.CacheKey(s.blog.LayoutCacheKey(), commentsKey)
	thankYou := r.URL.Query().Has("thank_you")
	if thankYou {
		key += "?thank_you"
	}
	body, err := Cached(s.blog.Cache, key, s.logger, func() ([]byte, error) {
		return s.renderPost(ctx, post, nil, nil, thankYou)
	})
	if err != nil {
		s.fail(w, "render post", err)
		return
	}
	writeHTML(w, http.StatusOK, body)
}

func (s *server) renderPost(ctx context.Context, post *Post, c *Comment, verr *ValidationError, thankYou bool) ([]byte, error) {
	if err := s.blog.AttachComments(ctx, post); err != nil {
		return nil, err
	}
	related, err := s.blog.Related(ctx, post.ID, "", 0)
	if err != nil {
		// a post without the related field still renders
		s.logger.Warn("related posts", "post", post.ID, "err", err)
		related = nil
	}
	return s.blog.Theme.Render("post.html", Page{
		Config:    s.blog.Config,
		PageTitle: post.Title + " - " + s.blog.Config.Blog.Name,
		Post:      post,
		Related:   related,
		Comment:   c,
		Errors:    verr,
		ThankYou:  thankYou,
	})
}

func (s *server) handleCreateComment(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	post, err := s.blog.Posts.Get(id)
	if errors.Is(err, ErrPostNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, "load post", err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	c := &Comment{
		PostID:    post.ID,
		Author:    strings.TrimSpace(r.PostFormValue("author")),
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		URL:       r.PostFormValue("url"),
		Body:      strings.TrimSpace(r.PostFormValue("body")),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
		Permalink: hostname(r) + post.Permalink(),
	}
	err = s.blog.Comments.Create(ctx, c)
	var verr *ValidationError
	if errors.As(err, &verr) {
		body, err := s.renderPost(ctx, post, c, verr, false)
		if err != nil {
			s.fail(w, "render post", err)
			return
		}
		writeHTML(w, http.StatusUnprocessableEntity, body)
		return
	}
	if err != nil {
		s.fail(w, "create comment", err)
		return
	}
	s.logger.Info("comment created", "post", post.ID, "comment", c.ID, "spam", c.Spam)
	http.Redirect(w, r, "/"+post.ID+".html?thank_you=#comment_form", http.StatusFound)
}

func (s *server) handleAbout(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, http.StatusOK, []byte(`<p style="font-family:sans-serif">I'm running on Go version `+runtime.Version()+`</p>`))
}

// --- Feeds ---

func (s *server) handleFeed(w http.ResponseWriter, r *http.Request) {
	posts, err := s.blog.Posts.Published(0)
	if err != nil {
		s.fail(w, "list posts", err)
		return
	}
	var modified time.Time
	for _, p := range posts {
		if p.UpdatedOn.After(modified) {
			modified = p.UpdatedOn
		}
	}
	if notModified(w, r, modified) {
		return
	}
	body, err := PostsFeed(s.blog.Config, s.baseURL(r), posts)
	if err != nil {
		s.fail(w, "posts feed", err)
		return
	}
	writeAtom(w, body)
}

func (s *server) handleCommentsFeed(w http.ResponseWriter, r *http.Request) {
	comments, err := s.blog.Comments.Recent(r.Context(), 0)
	if err != nil {
		s.fail(w, "recent comments", err)
		return
	}
	titles := make(map[string]string)
	var modified time.Time
	for _, c := range comments {
		if c.CreatedAt.After(modified) {
			modified = c.CreatedAt
		}
		if _, ok := titles[c.PostID]; ok {
			continue
		}
		if p, err := s.blog.Posts.Get(c.PostID); err == nil {
			titles[c.PostID] = p.Title
		} else {
			titles[c.PostID] = ""
		}
	}
	if notModified(w, r, modified) {
		return
	}
	body, err := CommentsFeed(s.blog.Config, s.baseURL(r), nil, comments, titles)
	if err != nil {
		s.fail(w, "comments feed", err)
		return
	}
	writeAtom(w, body)
}

func (s *server) handlePostFeed(w http.ResponseWriter, r *http.Request, id string) {
	post, err := s.blog.Posts.Get(id)
	if errors.Is(err, ErrPostNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, "load post", err)
		return
	}
	comments, err := s.blog.Comments.ForPost(r.Context(), post.ID)
	if err != nil {
		s.fail(w, "post comments", err)
		return
	}
	var modified time.Time
	if n := len(comments); n > 0 {
		modified = comments[n-1].CreatedAt
	}
	if notModified(w, r, modified) {
		return
	}
	body, err := CommentsFeed(s.blog.Config, s.baseURL(r), post, comments, map[string]string{post.ID: post.Title})
	if err != nil {
		s.fail(w, "post feed", err)
		return
	}
	writeAtom(w, body)
}

// notModified sets Last-Modified and answers 304 when the client's copy is
// current. A zero modified time disables conditional GET.
func notModified(w http.ResponseWriter, r *http.Request, modified time.Time) bool {
	if modified.IsZero() {
		return false
	}
	modified = modified.UTC().Truncate(time.Second)
	w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
	since, err := http.ParseTime(r.Header.Get("If-Modified-Since"))
	if err != nil || modified.After(since) {
		return false
	}
	w.WriteHeader(http.StatusNotModified)
	return true
}

// --- Related API ---

type relatedItem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Permalink string  `json:"permalink"`
	Score     float64 `json:"score"`
}

func (s *server) handleRelated(w http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()
	field := q.Get("field")
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = n
	}

	related, err := s.blog.Related(r.Context(), id, field, limit)
	switch {
	case errors.Is(err, ErrPostNotFound):
		writeError(w, http.StatusNotFound, "post not found: "+id)
		return
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("related posts", "post", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if field == "" {
		field = s.blog.Config.Related.Field
	}
	items := make([]relatedItem, 0, len(related))
	for _, rp := range related {
		items = append(items, relatedItem{ID: rp.Post.ID, Title: rp.Post.Title, Permalink: rp.Post.Permalink(), Score: rp.Score})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"post":    id,
		"field":   field,
		"related": items,
	})
}

// --- Helpers ---

func (s *server) notFound(w http.ResponseWriter, r *http.Request) {
	body, err := s.blog.Theme.Render("404.html", Page{Config: s.blog.Config, PageTitle: "Not found"})
	if err != nil {
		http.NotFound(w, r)
		return
	}
	writeHTML(w, http.StatusNotFound, body)
}

func (s *server) methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

func (s *server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, "err", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (s *server) baseURL(r *http.Request) string {
	if u := s.blog.Config.Blog.URL; u != "" {
		return strings.TrimSuffix(u, "/")
	}
	return "http://" + r.Host
}

func hostname(r *http.Request) string {
	if h := r.Header.Get("X-Forwarded-Server"); h != "" {
		return h
	}
	return r.Host
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeAtom(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"message": message,
		},
	})
}

// --- Request logging ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests tags every request with an X-Request-Id and logs it once
// served.
func logRequests(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
