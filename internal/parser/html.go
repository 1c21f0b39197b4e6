package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// HTMLParser extracts the visible text of an HTML document. Block elements
// become line breaks so that paragraphs survive as separate lines.
type HTMLParser struct{}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "header": true, "footer": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "pre": true, "blockquote": true,
	"table": true, "ul": true, "ol": true, "title": true,
}

func (HTMLParser) Parse(ctx context.Context, raw []byte) (*Parsed, error) {
	if _, err := decodeUTF8(raw); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style, noscript, template, svg").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var sb strings.Builder
	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		sb.WriteString(title)
		sb.WriteString("\n\n")
	}
	for _, n := range root.Nodes {
		writeText(&sb, n)
	}
	lines := strings.Split(sb.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return newParsed(strings.Join(lines, "\n"), nil), nil
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		words := strings.Fields(n.Data)
		if len(words) == 0 {
			if n.Data != "" {
				sb.WriteByte(' ')
			}
			return
		}
		if startsWithSpace(n.Data) {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.Join(words, " "))
		if endsWithSpace(n.Data) {
			sb.WriteByte(' ')
		}
		return
	case html.CommentNode:
		return
	}
	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		sb.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
	if block {
		sb.WriteByte('\n')
	}
}
