package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// renderOptions select which subtrees a render skips.
type renderOptions struct {
	// visibleOnly keeps navigation and page chrome, dropping only
	// elements that never render as text.
	visibleOnly bool
}

var invisibleTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"svg": true, "head": true, "iframe": true, "object": true,
}

var chromeTags = map[string]bool{
	"nav": true, "footer": true, "aside": true, "form": true, "button": true,
	"select": true, "dialog": true,
}

// renderMarkdown converts an HTML subtree to markdown.
func renderMarkdown(n *html.Node, opts renderOptions) string {
	var b strings.Builder
	writeNode(&b, n, opts, false)
	return tidyMarkdown(b.String())
}

func writeNode(b *strings.Builder, n *html.Node, opts renderOptions, inPre bool) {
	switch n.Type {
	case html.TextNode:
		data := n.Data
		if !inPre {
			data = strings.Join(strings.Fields(data), " ")
			if data == "" {
				if strings.TrimSpace(n.Data) == "" && n.Data != "" {
					b.WriteString(" ")
				}
				return
			}
			if startsWithSpace(n.Data) {
				b.WriteString(" ")
			}
			b.WriteString(data)
			if endsWithSpace(n.Data) {
				b.WriteString(" ")
			}
			return
		}
		b.WriteString(data)
		return
	case html.ElementNode:
	default:
		writeChildren(b, n, opts, inPre)
		return
	}

	name := strings.ToLower(n.Data)
	if invisibleTags[name] || hasAttr(n, "hidden") {
		return
	}
	if !opts.visibleOnly && (chromeTags[name] || isBoilerplateContainer(n)) {
		return
	}
	switch name {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(name[1] - '0')
		b.WriteString("\n\n" + strings.Repeat("#", level) + " ")
		b.WriteString(strings.Join(strings.Fields(textOf(n)), " "))
		b.WriteString("\n\n")
	case "p":
		b.WriteString("\n\n")
		writeChildren(b, n, opts, inPre)
		b.WriteString("\n\n")
	case "br":
		b.WriteString("\n")
	case "hr":
		b.WriteString("\n\n---\n\n")
	case "li":
		b.WriteString("\n- ")
		writeChildren(b, n, opts, inPre)
		b.WriteString("\n")
	case "ul", "ol", "table":
		b.WriteString("\n\n")
		writeChildren(b, n, opts, inPre)
		b.WriteString("\n\n")
	case "tr":
		b.WriteString("\n")
		writeChildren(b, n, opts, inPre)
	case "td", "th":
		writeChildren(b, n, opts, inPre)
		b.WriteString(" | ")
	case "pre":
		b.WriteString("\n\n```\n")
		b.WriteString(strings.Trim(textOf(n), "\n"))
		b.WriteString("\n```\n\n")
	case "code":
		if inPre {
			writeChildren(b, n, opts, true)
			return
		}
		b.WriteString("`" + textOf(n) + "`")
	case "blockquote":
		var inner strings.Builder
		writeChildren(&inner, n, opts, inPre)
		b.WriteString("\n\n")
		for _, line := range strings.Split(tidyMarkdown(inner.String()), "\n") {
			b.WriteString("> " + line + "\n")
		}
		b.WriteString("\n")
	case "img", "picture", "video", "audio", "canvas":
		return
	case "div", "section", "article", "main", "header", "figure", "figcaption", "dl", "dt", "dd":
		b.WriteString("\n")
		writeChildren(b, n, opts, inPre)
		b.WriteString("\n")
	default:
		writeChildren(b, n, opts, inPre)
	}
}

func writeChildren(b *strings.Builder, n *html.Node, opts renderOptions, inPre bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNode(b, c, opts, inPre)
	}
}

// textOf returns the raw text of a subtree, skipping invisible elements.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
			return
		}
		if cur.Type == html.ElementNode && invisibleTags[strings.ToLower(cur.Data)] {
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// tidyMarkdown trims and collapses spaces outside fenced code blocks and
// keeps at most one blank line between blocks.
func tidyMarkdown(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out = append(out, strings.TrimSpace(line))
			continue
		}
		if inFence {
			out = append(out, strings.TrimRight(line, " \t"))
			continue
		}
		trimmed := collapseSpaces(strings.TrimSpace(line))
		trimmed = strings.TrimSuffix(trimmed, " |")
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, trimmed)
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func startsWithSpace(s string) bool { return s != "" && strings.TrimLeft(s, " \t\r\n") != s }
func endsWithSpace(s string) bool   { return s != "" && strings.TrimRight(s, " \t\r\n") != s }
