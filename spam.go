package marley

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SpamChecker classifies comments.
type SpamChecker interface {
	IsSpam(ctx context.Context, c *Comment) (bool, error)
}

// NoSpamChecker accepts every comment.
type NoSpamChecker struct{}

func (NoSpamChecker) IsSpam(context.Context, *Comment) (bool, error) { return false, nil }

// Akismet asks the Akismet comment-check API about comments.
type Akismet struct {
	Key  string // API key
	Blog string // blog URL registered with the key
	// Endpoint overrides https://<key>.rest.akismet.com/1.1/comment-check.
	Endpoint string
	Client   *http.Client
}

// NewAkismet creates an Akismet checker with a short request timeout.
func NewAkismet(key, blog string) *Akismet {
	return &Akismet{Key: key, Blog: blog, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (a *Akismet) endpoint() string {
	if a.Endpoint != "" {
		return a.Endpoint
	}
	return "https://" + a.Key + ".rest.akismet.com/1.1/comment-check"
}

// IsSpam implements SpamChecker.
func (a *Akismet) IsSpam(ctx context.Context, c *Comment) (bool, error) {
	form := url.Values{
		"blog":                 {a.Blog},
		"user_ip":              {c.IP},
		"user_agent":           {c.UserAgent},
		"referrer":             {c.Referrer},
		"permalink":            {c.Permalink},
		"comment_type":         {"comment"},
		"comment_author":       {c.Author},
		"comment_author_email": {c.Email},
		"comment_author_url":   {c.URL},
		"comment_content":      {c.Body},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return false, errors.Wrap(err, "akismet request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "marley/1.0 | Akismet")

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "akismet comment-check")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, errors.New("akismet comment-check: " + resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return false, errors.Wrap(err, "akismet response")
	}
	switch strings.TrimSpace(string(body)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, errors.Errorf("akismet comment-check: unexpected answer %q", body)
}
