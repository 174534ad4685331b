package extract

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/hyperifyio/gocorpus/internal/corpus"
)

// FromHTML returns every visible piece of text under <body> as markdown,
// keeping headings, paragraphs, list items and code blocks. It is the last
// resort of the blog chain and never fails on parseable input.
func FromHTML(input []byte) Document {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil || node == nil {
		return Document{}
	}
	title := strings.TrimSpace(findTitle(node))
	content := findFirst(node, "body")
	if content == nil {
		content = node
	}
	return Document{Title: title, Text: renderMarkdown(content, renderOptions{visibleOnly: true})}
}

// bodyStage wraps FromHTML.
type bodyStage struct{}

func (bodyStage) ID() corpus.StrategyID { return StageBody }

func (bodyStage) Attempt(_ context.Context, page *Page) (Document, error) {
	if len(page.HTML) == 0 {
		return Document{}, errNoHTML
	}
	return FromHTML(page.HTML), nil
}

func findTitle(n *html.Node) string {
	head := findFirst(n, "head")
	if head == nil {
		return ""
	}
	t := findFirst(head, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return t.FirstChild.Data
}

func findFirst(n *html.Node, tag string) *html.Node {
	var res *html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if res != nil {
			return
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			res = cur
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
			if res != nil {
				return
			}
		}
	}
	dfs(n)
	return res
}

// isBoilerplateContainer reports cookie and consent banners.
func isBoilerplateContainer(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" && !strings.HasPrefix(key, "data-") && key != "aria-label" && key != "role" {
			continue
		}
		if containsAny(strings.ToLower(attr.Val), []string{"cookie", "consent", "gdpr"}) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}
