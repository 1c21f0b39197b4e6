// Package chunking splits document text into overlapping word windows.
// Words are also the unit of the token estimate, so limits and chunk sizes agree.
package chunking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agenthands/docgraph/internal/core/model"
)

var ErrInvalidConfig = errors.New("invalid chunk configuration")

type Config struct {
	Size    int
	Overlap int
}

func (c Config) Validate() error {
	switch {
	case c.Size <= 0:
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.Size)
	case c.Overlap < 0:
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, c.Overlap)
	case c.Overlap >= c.Size:
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidConfig, c.Overlap, c.Size)
	}
	return nil
}

// Split returns the chunk texts of text in order. The last chunk may be shorter
// than size. Whitespace between words is collapsed to a single space.
func Split(text string, size, overlap int) ([]string, error) {
	if err := (Config{Size: size, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]string, 0, Count(len(words), size, overlap))
	for start := 0; ; start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// Count is the number of chunks Split produces for wordCount words, without
// materializing them. The configuration is assumed valid.
func Count(wordCount, size, overlap int) int {
	if wordCount <= 0 {
		return 0
	}
	if wordCount <= size {
		return 1
	}
	step := size - overlap
	return 1 + (wordCount-size+step-1)/step
}

// EstimateTokens is the cheap token estimate used for budgets.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

type Chunker struct {
	cfg Config
}

func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

func (c *Chunker) Config() Config {
	return c.cfg
}

// Count predicts the chunk count for text.
func (c *Chunker) Count(text string) int {
	return Count(EstimateTokens(text), c.cfg.Size, c.cfg.Overlap)
}

// Chunks splits text into document chunks with dense indexes and stable ids.
func (c *Chunker) Chunks(documentID, text string) ([]model.DocumentChunk, error) {
	texts, err := Split(text, c.cfg.Size, c.cfg.Overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]model.DocumentChunk, len(texts))
	for i, t := range texts {
		chunks[i] = model.DocumentChunk{
			ID:         model.ChunkID(documentID, i),
			DocumentID: documentID,
			Text:       t,
			Index:      i,
		}
	}
	return chunks, nil
}
