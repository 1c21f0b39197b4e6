package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	for _, ft := range []string{"txt", ".MD", "markdown", "text/html; charset=utf-8", "application/pdf"} {
		_, err := r.Lookup(ft)
		assert.NoError(t, err, ft)
	}

	_, err := r.Lookup("docx")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, "md", TypeOf("notes/Readme.MD"))
	assert.Equal(t, "pdf", TypeOf("a.b.pdf"))
	assert.Equal(t, "", TypeOf("Makefile"))
	assert.Equal(t, "", TypeOf("trailing."))
}

func TestTextParserNormalizes(t *testing.T) {
	raw := []byte("\ufeffFirst line  \r\nsecond line\r\n\r\n\r\n\r\nthird   \n\n")
	p, err := TextParser{}.Parse(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "First line\nsecond line\n\nthird", p.Text)
	assert.Equal(t, 5, p.Metadata.WordCount)
	assert.Equal(t, 4, p.Metadata.LineCount)
	assert.Nil(t, p.Metadata.PageCount)
}

func TestTextParserRejectsInvalidUTF8(t *testing.T) {
	_, err := TextParser{}.Parse(context.Background(), []byte{0xff, 0xfe, 'a'})
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestEmptyText(t *testing.T) {
	p, err := TextParser{}.Parse(context.Background(), []byte("  \n "))
	require.NoError(t, err)
	assert.Empty(t, p.Text)
	assert.Zero(t, p.Metadata.LineCount)
	assert.Zero(t, p.Metadata.WordCount)
}

func TestMarkdownParser(t *testing.T) {
	raw := []byte("# Title\n\nSome **bold** and _italic_ text with a [link](https://example.com).\n\n" +
		"> quoted `code`\n\n---\n\n```go\nfmt.Println(1)\n```\n\n![diagram](img.png)\n")
	p, err := MarkdownParser{}.Parse(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "Title\n\nSome bold and italic text with a link.\n\nquoted code\n\nfmt.Println(1)\n\ndiagram", p.Text)
}

func TestHTMLParser(t *testing.T) {
	raw := []byte(`<html><head><title>Doc</title><style>p{}</style></head>
<body><script>alert(1)</script><h1>Heading</h1><p>Hello <b>big</b> world</p><div>Second&nbsp;para</div></body></html>`)
	p, err := HTMLParser{}.Parse(context.Background(), raw)
	require.NoError(t, err)

	assert.Contains(t, p.Text, "Doc")
	assert.Contains(t, p.Text, "Heading")
	assert.Contains(t, p.Text, "Hello big world")
	assert.NotContains(t, p.Text, "alert")
	assert.NotContains(t, p.Text, "p{}")
}

func TestPDFParserRejectsGarbage(t *testing.T) {
	_, err := PDFParser{}.Parse(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestRegistryParseDispatches(t *testing.T) {
	p, err := NewRegistry().Parse(context.Background(), "md", []byte("## Go\nGo is a language"))
	require.NoError(t, err)
	assert.Equal(t, "Go\nGo is a language", p.Text)
}
