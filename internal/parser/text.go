package parser

import (
	"context"
	"regexp"
	"strings"
)

type TextParser struct{}

func (TextParser) Parse(ctx context.Context, raw []byte) (*Parsed, error) {
	text, err := decodeUTF8(raw)
	if err != nil {
		return nil, err
	}
	return newParsed(text, nil), nil
}

var (
	mdFence   = regexp.MustCompile("(?m)^[ \t]*(```|~~~).*$")
	mdHeading = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+`)
	mdQuote   = regexp.MustCompile(`(?m)^[ \t]{0,3}>[ \t]?`)
	mdRule    = regexp.MustCompile(`(?m)^[ \t]{0,3}(?:(?:-[ \t]*){3,}|(?:\*[ \t]*){3,}|(?:_[ \t]*){3,})$`)
	mdImage   = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdCode    = regexp.MustCompile("`([^`]+)`")
	mdHTMLTag = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

	// RE2 has no backreferences, so each delimiter gets its own pattern.
	mdEmphasis = []*regexp.Regexp{
		regexp.MustCompile(`\*\*([^*]+)\*\*`),
		regexp.MustCompile(`__([^_]+)__`),
		regexp.MustCompile(`~~([^~]+)~~`),
		regexp.MustCompile(`\*([^*\s][^*]*)\*`),
		regexp.MustCompile(`\b_([^_]+)_\b`),
	}
)

// MarkdownParser strips markdown syntax and keeps the readable text.
type MarkdownParser struct{}

func (MarkdownParser) Parse(ctx context.Context, raw []byte) (*Parsed, error) {
	text, err := decodeUTF8(raw)
	if err != nil {
		return nil, err
	}
	return newParsed(StripMarkdown(text), nil), nil
}

func StripMarkdown(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = mdFence.ReplaceAllString(text, "")
	text = mdRule.ReplaceAllString(text, "")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdQuote.ReplaceAllString(text, "")
	text = mdImage.ReplaceAllString(text, "$1")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdCode.ReplaceAllString(text, "$1")
	for _, re := range mdEmphasis {
		text = re.ReplaceAllString(text, "$1")
	}
	return mdHTMLTag.ReplaceAllString(text, "")
}
