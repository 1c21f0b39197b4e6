// Package cache persists per-document pipeline checkpoints on disk.
//
// Layout: <root>/<document id>/chunks.json and <root>/<document id>/extractions.json.
// Every file is written to a temp file in the same directory, synced and renamed
// into place, so a reader sees either the previous artifact or the complete new one.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/logger"
)

const (
	ChunksFile      = "chunks.json"
	ExtractionsFile = "extractions.json"

	formatVersion = 1
)

var (
	ErrInvalidDocumentID = errors.New("invalid document id for cache")
	ErrNoChunkCache      = errors.New("no chunk cache for document")
	ErrInconsistent      = errors.New("extractions do not match cached chunks")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidID reports whether documentID can name a cache directory.
func ValidID(documentID string) bool {
	return validID.MatchString(documentID) && documentID != "." && documentID != ".."
}

type envelope[T any] struct {
	Version     int       `json:"version"`
	DocumentID  string    `json:"document_id"`
	Fingerprint string    `json:"fingerprint"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
	Items       []T       `json:"items"`
}

// Fingerprint identifies the chunking input. A chunk cache recorded under a
// different fingerprint is stale.
func Fingerprint(text string, chunkSize, overlap int) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(chunkSize)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(overlap)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

type FileCache struct {
	root string
}

func NewFileCache(root string) (*FileCache, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir '%s': %w", root, err)
	}
	return &FileCache{root: root}, nil
}

func (c *FileCache) dir(documentID string) (string, error) {
	if !ValidID(documentID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDocumentID, documentID)
	}
	return filepath.Join(c.root, documentID), nil
}

// LoadChunks returns the cached chunk list if it exists and was produced from
// the same fingerprint. Missing, stale or unreadable entries are misses.
func (c *FileCache) LoadChunks(documentID, fingerprint string) ([]model.DocumentChunk, bool, error) {
	env, ok, err := c.loadChunkEnvelope(documentID)
	if err != nil || !ok {
		return nil, false, err
	}
	if env.Fingerprint != fingerprint {
		logger.Info("[Cache] chunk cache is stale", "document_id", documentID)
		return nil, false, nil
	}
	return env.Items, true, nil
}

// SaveChunks records the chunk list and drops any extraction cache made from
// an earlier chunking.
func (c *FileCache) SaveChunks(documentID, fingerprint string, chunks []model.DocumentChunk) error {
	dir, err := c.dir(documentID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	if err := os.Remove(filepath.Join(dir, ExtractionsFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to drop stale extraction cache: %w", err)
	}
	env := envelope[model.DocumentChunk]{
		Version:     formatVersion,
		DocumentID:  documentID,
		Fingerprint: fingerprint,
		ChunkCount:  len(chunks),
		CreatedAt:   time.Now().UTC(),
		Items:       chunks,
	}
	return writeJSON(filepath.Join(dir, ChunksFile), env)
}

// LoadExtractions returns cached extraction results only when a valid chunk
// cache with the same fingerprint exists and the two agree chunk by chunk.
func (c *FileCache) LoadExtractions(documentID, fingerprint string) ([]model.ChunkExtraction, bool, error) {
	chunks, ok, err := c.LoadChunks(documentID, fingerprint)
	if err != nil || !ok {
		return nil, false, err
	}
	dir, _ := c.dir(documentID)

	var env envelope[model.ChunkExtraction]
	ok, err = readJSON(filepath.Join(dir, ExtractionsFile), &env)
	if err != nil || !ok {
		return nil, false, err
	}
	if env.Version != formatVersion || env.DocumentID != documentID || env.Fingerprint != fingerprint {
		return nil, false, nil
	}
	if err := consistent(chunks, env.Items); err != nil {
		logger.Warn("[Cache] ignoring extraction cache", "document_id", documentID, "error", err)
		return nil, false, nil
	}
	return env.Items, true, nil
}

// SaveExtractions refuses to write unless the chunk cache is present and matches.
func (c *FileCache) SaveExtractions(documentID, fingerprint string, extractions []model.ChunkExtraction) error {
	chunks, ok, err := c.LoadChunks(documentID, fingerprint)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoChunkCache, documentID)
	}
	if err := consistent(chunks, extractions); err != nil {
		return err
	}
	dir, _ := c.dir(documentID)
	env := envelope[model.ChunkExtraction]{
		Version:     formatVersion,
		DocumentID:  documentID,
		Fingerprint: fingerprint,
		ChunkCount:  len(chunks),
		CreatedAt:   time.Now().UTC(),
		Items:       extractions,
	}
	return writeJSON(filepath.Join(dir, ExtractionsFile), env)
}

// Invalidate removes every checkpoint of the document.
func (c *FileCache) Invalidate(documentID string) error {
	dir, err := c.dir(documentID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove cache for %s: %w", documentID, err)
	}
	return nil
}

func (c *FileCache) loadChunkEnvelope(documentID string) (*envelope[model.DocumentChunk], bool, error) {
	dir, err := c.dir(documentID)
	if err != nil {
		return nil, false, err
	}
	var env envelope[model.DocumentChunk]
	ok, err := readJSON(filepath.Join(dir, ChunksFile), &env)
	if err != nil || !ok {
		return nil, false, err
	}
	if env.Version != formatVersion || env.DocumentID != documentID || env.ChunkCount != len(env.Items) {
		logger.Warn("[Cache] ignoring malformed chunk cache", "document_id", documentID)
		return nil, false, nil
	}
	for i, ch := range env.Items {
		if ch.Index != i || ch.DocumentID != documentID {
			logger.Warn("[Cache] ignoring chunk cache with bad index", "document_id", documentID, "position", i)
			return nil, false, nil
		}
	}
	return &env, true, nil
}

func consistent(chunks []model.DocumentChunk, extractions []model.ChunkExtraction) error {
	if len(chunks) != len(extractions) {
		return fmt.Errorf("%w: %d chunks, %d extractions", ErrInconsistent, len(chunks), len(extractions))
	}
	for i, ex := range extractions {
		if ex.ChunkIndex != chunks[i].Index || ex.ChunkID != chunks[i].ID {
			return fmt.Errorf("%w: position %d", ErrInconsistent, i)
		}
	}
	return nil
}

// readJSON reports ok=false for a missing or undecodable file.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warn("[Cache] corrupt cache file", "path", path, "error", err)
		return false, nil
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}

	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
