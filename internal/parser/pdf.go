package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

// PDFParser extracts the plain text of every page, pages joined by blank lines.
type PDFParser struct {
	MaxWorkers int
}

func (p PDFParser) Parse(ctx context.Context, raw []byte) (parsed *Parsed, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			parsed, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]string, numPages)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.MaxWorkers, 1))
	for i := 1; i <= numPages; i++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("malformed pdf page %d: %v", i, r)
				}
			}()
			if err := ctx.Err(); err != nil {
				return err
			}
			page := reader.Page(i)
			if page.V.IsNull() {
				return nil
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				return fmt.Errorf("failed to get text from page %d: %w", i, err)
			}
			pages[i-1] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	nonEmpty := pages[:0:0]
	for _, t := range pages {
		if strings.TrimSpace(t) != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	return newParsed(strings.Join(nonEmpty, "\n\n"), &numPages), nil
}
