package marley

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"
)

const atomNS = "http://www.w3.org/2005/Atom"

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	NS      string      `xml:"xmlns,attr"`
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Link    []atomLink  `xml:"link"`
	Author  *atomPerson `xml:"author,omitempty"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
	Type string `xml:"type,attr,omitempty"`
}

type atomPerson struct {
	Name string `xml:"name"`
	URI  string `xml:"uri,omitempty"`
}

type atomText struct {
	Type string `xml:"type,attr,omitempty"`
	Body string `xml:",chardata"`
}

type atomEntry struct {
	Title     string      `xml:"title"`
	ID        string      `xml:"id"`
	Link      atomLink    `xml:"link"`
	Published string      `xml:"published,omitempty"`
	Updated   string      `xml:"updated"`
	Author    *atomPerson `xml:"author,omitempty"`
	Summary   *atomText   `xml:"summary,omitempty"`
	Content   *atomText   `xml:"content,omitempty"`
}

func atomTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func encodeFeed(f atomFeed) ([]byte, error) {
	f.NS = atomNS
	b, err := xml.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), b...), nil
}

// PostsFeed is the Atom feed of articles, base being the blog's absolute URL.
func PostsFeed(cfg *Config, base string, posts []*Post) ([]byte, error) {
	base = strings.TrimSuffix(base, "/")
	f := atomFeed{
		Title:  cfg.Blog.Title,
		ID:     base + "/",
		Link:   []atomLink{{Href: base + "/"}, {Href: base + "/feed", Rel: "self", Type: "application/atom+xml"}},
		Author: &atomPerson{Name: cfg.Blog.Author, URI: base + "/"},
	}
	var updated time.Time
	for _, p := range posts {
		if p.UpdatedOn.After(updated) {
			updated = p.UpdatedOn
		}
		f.Entries = append(f.Entries, atomEntry{
			Title:     p.Title,
			ID:        base + p.Permalink(),
			Link:      atomLink{Href: base + p.Permalink()},
			Published: atomTime(p.PublishedOn),
			Updated:   atomTime(p.UpdatedOn),
			Summary:   &atomText{Type: "text", Body: Summary(string(p.PerexHTML), 280)},
			Content:   &atomText{Type: "html", Body: string(p.FullBodyHTML)},
		})
	}
	f.Updated = atomTime(updated)
	return encodeFeed(f)
}

// CommentsFeed is the Atom feed of comments. post is nil for the feed of
// every article's comments; titles maps post ids to article titles.
func CommentsFeed(cfg *Config, base string, post *Post, comments []Comment, titles map[string]string) ([]byte, error) {
	base = strings.TrimSuffix(base, "/")
	f := atomFeed{
		Title: cfg.Blog.Title + " comments",
		ID:    base + "/feed/comments",
		Link:  []atomLink{{Href: base + "/"}, {Href: base + "/feed/comments", Rel: "self", Type: "application/atom+xml"}},
	}
	if post != nil {
		f.Title = post.Title + " - comments"
		f.ID = base + "/" + post.ID + "/feed"
		f.Link = []atomLink{{Href: base + post.Permalink()}, {Href: base + "/" + post.ID + "/feed", Rel: "self", Type: "application/atom+xml"}}
	}
	var updated time.Time
	for _, c := range comments {
		if c.CreatedAt.After(updated) {
			updated = c.CreatedAt
		}
		title := titles[c.PostID]
		if title == "" {
			title = c.PostID
		}
		link := base + "/" + c.PostID + ".html#comment-" + strconv.FormatUint(uint64(c.ID), 10)
		f.Entries = append(f.Entries, atomEntry{
			Title:   c.Author + " on " + title,
			ID:      link,
			Link:    atomLink{Href: link},
			Updated: atomTime(c.CreatedAt),
			Author:  &atomPerson{Name: c.Author, URI: c.URL},
			Content: &atomText{Type: "text", Body: c.Body},
		})
	}
	f.Updated = atomTime(updated)
	return encodeFeed(f)
}
