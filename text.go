package marley

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText returns the visible text of an HTML fragment, one space between
// text nodes. Script and style contents are dropped.
func PlainText(src string) string {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}

	var parts []string
	// skipDepth > 0 while inside <script> or <style>
	var skipDepth int

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		skip := n.Type == html.ElementNode && (strings.EqualFold(n.Data, "script") || strings.EqualFold(n.Data, "style"))
		if skip {
			skipDepth++
		}
		if skipDepth == 0 && n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if skip {
			skipDepth--
		}
	}
	walk(root)
	return strings.Join(parts, " ")
}

// Summary shortens the plain text of an HTML fragment to at most n runes,
// cutting at a word boundary.
func Summary(src string, n int) string {
	text := PlainText(src)
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	cut := string(r[:n])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
