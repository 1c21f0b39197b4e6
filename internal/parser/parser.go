// Package parser turns raw uploaded bytes into plain text for chunking.
package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrInvalidEncoding = errors.New("document is not valid UTF-8")
)

type Metadata struct {
	WordCount int  `json:"word_count"`
	LineCount int  `json:"line_count"`
	PageCount *int `json:"page_count,omitempty"`
}

type Parsed struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

type Parser interface {
	Parse(ctx context.Context, raw []byte) (*Parsed, error)
}

// Registry selects a Parser by file extension or MIME type.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with the text, markdown, HTML and PDF parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	text := TextParser{}
	md := MarkdownParser{}
	html := HTMLParser{}
	pdf := PDFParser{MaxWorkers: 4}

	r.Register(text, "txt", "text", "text/plain")
	r.Register(md, "md", "markdown", "text/markdown")
	r.Register(html, "html", "htm", "text/html")
	r.Register(pdf, "pdf", "application/pdf")
	return r
}

func (r *Registry) Register(p Parser, types ...string) {
	for _, t := range types {
		r.parsers[normalizeType(t)] = p
	}
}

func (r *Registry) Lookup(fileType string) (Parser, error) {
	p, ok := r.parsers[normalizeType(fileType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}
	return p, nil
}

func (r *Registry) Parse(ctx context.Context, fileType string, raw []byte) (*Parsed, error) {
	p, err := r.Lookup(fileType)
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, raw)
}

// TypeOf derives a registry key from a filename.
func TypeOf(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 || i == len(filename)-1 {
		return ""
	}
	return normalizeType(filename[i+1:])
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	// drop MIME parameters such as "; charset=utf-8"
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return strings.TrimPrefix(t, ".")
}

func decodeUTF8(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", ErrInvalidEncoding
	}
	return strings.TrimPrefix(string(raw), "\ufeff"), nil
}

// normalize converts line endings to LF, strips trailing whitespace from each
// line, collapses runs of blank lines and trims the result.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\f\v\u00a0")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func newParsed(text string, pages *int) *Parsed {
	text = normalize(text)
	lines := 0
	if text != "" {
		lines = strings.Count(text, "\n") + 1
	}
	return &Parsed{
		Text: text,
		Metadata: Metadata{
			WordCount: len(strings.Fields(text)),
			LineCount: lines,
			PageCount: pages,
		},
	}
}
