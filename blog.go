package marley

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CacheNamespace prefixes every memcached key of the blog.
const CacheNamespace = "Marley/"

// Blog wires articles, comments, counters, the related ranker and the theme
// into the operations the HTTP server and the CLI run.
type Blog struct {
	Config   *Config
	Posts    *PostStore
	Comments *CommentStore
	TopPosts *TopPostStore
	Ranker   *Ranker
	Cache    Store
	Theme    *Theme

	db     *gorm.DB
	logger *slog.Logger
}

// RelatedPost is an article ranked against another one.
type RelatedPost struct {
	Post  *Post   `json:"-"`
	Score float64 `json:"score"`
}

// New opens the blog described by cfg: the comments database lives in the
// data directory, the cache in memcached when configured.
func New(cfg *Config, logger *slog.Logger) (*Blog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDirectory, 0o755); err != nil {
		return nil, errors.Wrapf(err, "data directory %s", cfg.DataDirectory)
	}
	db, err := OpenDatabase(filepath.Join(cfg.DataDirectory, "comments.db"))
	if err != nil {
		return nil, err
	}

	var store Store
	if cfg.Memcached != "" {
		store = NewMemcacheStore(cfg.Memcached, CacheNamespace)
		logger.Info("using memcached", "servers", cfg.Memcached)
	} else {
		store = NewMemoryStore(cfg.CacheEntries)
	}

	var checker SpamChecker = NoSpamChecker{}
	if cfg.Akismet.Key != "" {
		blogURL := cfg.Akismet.URL
		if blogURL == "" {
			blogURL = cfg.Blog.URL
		}
		checker = NewAkismet(cfg.Akismet.Key, blogURL)
	}

	stemmer, err := StemmerByName(cfg.Related.Stemmer)
	if err != nil {
		CloseDatabase(db)
		return nil, err
	}
	theme, err := LoadTheme(cfg.ThemeDirectory())
	if err != nil {
		CloseDatabase(db)
		return nil, err
	}

	return &Blog{
		Config:   cfg,
		Posts:    NewPostStore(cfg.DataDirectory, loc),
		Comments: NewCommentStore(db, checker, logger),
		TopPosts: NewTopPostStore(db),
		Ranker:   NewRanker(NewScoreCache(store), stemmer, logger),
		Cache:    store,
		Theme:    theme,
		db:       db,
		logger:   logger,
	}, nil
}

// Close releases the database.
func (b *Blog) Close() error {
	return CloseDatabase(b.db)
}

// Related ranks every other published article against the article postID.
// Empty field and non-positive limit take the configured defaults.
func (b *Blog) Related(ctx context.Context, postID, field string, limit int) ([]RelatedPost, error) {
	if field == "" {
		field = b.Config.Related.Field
	}
	if limit <= 0 {
		limit = b.Config.Related.Limit
	}
	target, err := b.Posts.Get(postID)
	if err != nil {
		return nil, err
	}
	posts, err := b.Posts.Published(0)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	candidates := make([]Document, len(posts))
	for i, p := range posts {
		candidates[i] = p
	}
	ranked, err := b.Ranker.Rank(target, candidates, field, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RelatedPost, len(ranked))
	for i, r := range ranked {
		out[i] = RelatedPost{Post: r.Document.(*Post), Score: r.Score}
	}
	return out, nil
}

// Popular returns the most viewed published articles, most viewed first.
// Counters of removed articles are skipped.
func (b *Blog) Popular(ctx context.Context, limit int) ([]*Post, error) {
	if limit <= 0 {
		limit = b.Config.PopularLimit
	}
	tops, err := b.TopPosts.Top(ctx, limit)
	if err != nil {
		return nil, err
	}
	posts := make([]*Post, 0, len(tops))
	for _, tp := range tops {
		p, err := b.Posts.Get(tp.PostID)
		if errors.Is(err, ErrPostNotFound) {
			b.logger.Debug("popular article is gone", "post", tp.PostID)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !p.Published {
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// AttachComments loads the approved comments of every post.
func (b *Blog) AttachComments(ctx context.Context, posts ...*Post) error {
	for _, p := range posts {
		cs, err := b.Comments.ForPost(ctx, p.ID)
		if err != nil {
			return err
		}
		p.Comments = cs
	}
	return nil
}

// LayoutCacheKey changes with the theme and the deployed revision.
func (b *Blog) LayoutCacheKey() string {
	key := b.Config.Theme + ":" + b.Theme.CacheKey()
	if b.Config.Revision != "" {
		key += ":" + b.Config.Revision
	}
	return key
}

// PostsCacheKey is the cache key of a page listing posts.
func (b *Blog) PostsCacheKey(ctx context.Context, name string, posts []*Post) (string, error) {
	comments, err := b.Comments.CacheKey(ctx)
	if err != nil {
		return "", err
	}
	parts := []string{"page", name, b.LayoutCacheKey(), comments}
	for _, p := range posts {
		parts = append(parts, p.ID+"@"+strconv.FormatInt(p.UpdatedOn.Unix(), 10))
	}
	return strings.Join(parts, "/"), nil
}
