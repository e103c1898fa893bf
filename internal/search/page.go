package search

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

var skippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"svg": true, "iframe": true, "nav": true, "footer": true,
	"header": true, "aside": true, "form": true, "head": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"blockquote": true, "pre": true, "table": true, "tr": true, "ul": true,
	"ol": true, "dl": true, "dt": true, "dd": true, "figure": true, "figcaption": true,
}

var headingLevel = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

// PageMarkdown converts an HTML document to plain Markdown: the title as a
// top heading, headings, list items and paragraphs separated by blank lines.
// Inline markup is flattened to text.
func PageMarkdown(doc []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	w := &pageWriter{}
	w.walk(root)
	w.flush()

	var out strings.Builder
	if title := strings.Join(strings.Fields(findTitle(root)), " "); title != "" {
		out.WriteString("# ")
		out.WriteString(title)
		out.WriteString("\n\n")
	}
	out.WriteString(strings.Join(w.blocks, "\n\n"))
	return strings.TrimSpace(out.String()), nil
}

type pageWriter struct {
	blocks []string
	line   strings.Builder
	prefix string
}

func (w *pageWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.line.WriteString(n.Data)
		w.line.WriteByte(' ')
		return
	case html.ElementNode:
		if skippedTags[n.Data] {
			return
		}
		switch {
		case n.Data == "br":
			w.flush()
			return
		case n.Data == "li":
			w.flush()
			w.prefix = "- "
		case headingLevel[n.Data] > 0:
			w.flush()
			w.prefix = strings.Repeat("#", headingLevel[n.Data]) + " "
		case blockTags[n.Data]:
			w.flush()
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if n.Type == html.ElementNode && (n.Data == "li" || headingLevel[n.Data] > 0 || blockTags[n.Data]) {
		w.flush()
	}
}

// flush ends the current block, applying a pending heading or list prefix
func (w *pageWriter) flush() {
	text := strings.Join(strings.Fields(w.line.String()), " ")
	w.line.Reset()
	if text == "" {
		return
	}
	w.blocks = append(w.blocks, w.prefix+text)
	w.prefix = ""
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return b.String()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}
