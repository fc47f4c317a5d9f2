package marley

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DefaultRecentComments is the size of the recent comments feed.
const DefaultRecentComments = 50

// Comment is a reader's comment on an article.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    string    `gorm:"index;not null" json:"post_id" validate:"required"`
	Author    string    `json:"author" validate:"required"`
	Email     string    `json:"-" validate:"required,email"`
	URL       string    `json:"url,omitempty"`
	Body      string    `json:"body" validate:"required"`
	IP        string    `json:"-"`
	UserAgent string    `json:"-"`
	Referrer  string    `json:"-"`
	Permalink string    `json:"-"`
	Checked   bool      `json:"-"`
	Spam      bool      `gorm:"index" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GravatarURL is the avatar of the comment's author, size pixels wide
// (40 when size <= 0).
func (c *Comment) GravatarURL(size int) string {
	if size <= 0 {
		size = 40
	}
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(c.Email))))
	return "http://gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?s=" + strconv.Itoa(size)
}

// CommentStore persists comments.
type CommentStore struct {
	db       *gorm.DB
	checker  SpamChecker
	validate *validator.Validate
	logger   *slog.Logger
}

// NewCommentStore creates a CommentStore. A nil checker accepts everything.
func NewCommentStore(db *gorm.DB, checker SpamChecker, logger *slog.Logger) *CommentStore {
	if checker == nil {
		checker = NoSpamChecker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommentStore{db: db, checker: checker, validate: validator.New(), logger: logger}
}

// Create validates c, normalizes its URL, asks the spam checker about it
// and saves it. Validation failures are *ValidationError.
func (s *CommentStore) Create(ctx context.Context, c *Comment) error {
	c.URL = normalizeURL(c.URL)
	if err := s.validate.Struct(c); err != nil {
		return newValidationError(err)
	}

	spam, err := s.checker.IsSpam(ctx, c)
	if err != nil {
		// unchecked comments stay visible
		s.logger.Warn("spam check failed", "post", c.PostID, "err", err)
		c.Checked, c.Spam = false, false
	} else {
		c.Checked, c.Spam = true, spam
	}

	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return errors.Wrap(err, "save comment")
	}
	return nil
}

// ForPost returns the approved comments of an article, oldest first.
func (s *CommentStore) ForPost(ctx context.Context, postID string) ([]Comment, error) {
	var cs []Comment
	err := s.ham(ctx).Where("post_id = ?", postID).Order("created_at ASC, id ASC").Find(&cs).Error
	return cs, errors.Wrapf(err, "comments of %s", postID)
}

// Recent returns up to limit approved comments, newest first.
func (s *CommentStore) Recent(ctx context.Context, limit int) ([]Comment, error) {
	if limit <= 0 {
		limit = DefaultRecentComments
	}
	var cs []Comment
	err := s.ham(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&cs).Error
	return cs, errors.Wrap(err, "recent comments")
}

// CacheKey changes whenever an approved comment is added: it is the unix
// time of the newest one, "0" without comments.
func (s *CommentStore) CacheKey(ctx context.Context) (string, error) {
	cs, err := s.Recent(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(cs) == 0 {
		return "0", nil
	}
	return strconv.FormatInt(cs[0].CreatedAt.Unix(), 10), nil
}

func (s *CommentStore) ham(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&Comment{}).Where("spam = ?", false)
}

// normalizeURL trims a commenter's homepage, drops script and data URLs and
// adds http:// when no scheme is given.
func normalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "data:") {
		return ""
	}
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		u = "http://" + u
	}
	if _, err := url.Parse(u); err != nil {
		return ""
	}
	return u
}
