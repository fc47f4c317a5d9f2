package marley

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"
)

func TestPostsFeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Blog.Title = "My Blog"
	cfg.Blog.Author = "Ann"
	updated := time.Date(2010, 3, 4, 5, 6, 7, 0, time.UTC)
	posts := []*Post{{
		ID:           "hello",
		Title:        "Hello & welcome",
		PerexHTML:    "<p>Short intro</p>",
		FullBodyHTML: "<p>Short intro</p><p>More.</p>",
		PublishedOn:  updated.Add(-time.Hour),
		UpdatedOn:    updated,
	}}

	b, err := PostsFeed(cfg, "http://example.com/", posts)
	if err != nil {
		t.Fatalf("PostsFeed error: %v", err)
	}
	var feed atomFeed
	if err := xml.Unmarshal(b, &feed); err != nil {
		t.Fatalf("feed is not XML: %v\n%s", err, b)
	}
	if feed.Title != "My Blog" || feed.Updated != "2010-03-04T05:06:07Z" || len(feed.Entries) != 1 {
		t.Fatalf("feed=%+v", feed)
	}
	e := feed.Entries[0]
	if e.Title != "Hello & welcome" || e.ID != "http://example.com/hello.html" || e.Summary.Body != "Short intro" {
		t.Fatalf("entry=%+v", e)
	}
	if !strings.Contains(string(b), `xmlns="http://www.w3.org/2005/Atom"`) {
		t.Fatalf("missing Atom namespace:\n%s", b)
	}
}

func TestCommentsFeed(t *testing.T) {
	cfg := DefaultConfig()
	created := time.Date(2011, 1, 2, 3, 4, 5, 0, time.UTC)
	comments := []Comment{{ID: 7, PostID: "hello", Author: "Bob", Body: "Nice", CreatedAt: created}}

	b, err := CommentsFeed(cfg, "http://example.com", nil, comments, map[string]string{"hello": "Hello"})
	if err != nil {
		t.Fatalf("CommentsFeed error: %v", err)
	}
	s := string(b)
	for _, want := range []string{"Bob on Hello", "http://example.com/hello.html#comment-7", "2011-01-02T03:04:05Z"} {
		if !strings.Contains(s, want) {
			t.Fatalf("comments feed missing %q:\n%s", want, s)
		}
	}

	post := &Post{ID: "hello", Title: "Hello"}
	b, err = CommentsFeed(cfg, "http://example.com", post, nil, nil)
	if err != nil {
		t.Fatalf("CommentsFeed error: %v", err)
	}
	if !strings.Contains(string(b), "<title>Hello - comments</title>") {
		t.Fatalf("post comments feed:\n%s", b)
	}
}
