// Package usage records token consumption of model calls.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/logger"
)

const (
	keyPrefix    = "usage/"
	sequenceKey  = "!seq/usage"
	seqBandwidth = 128
)

// Recorder accepts usage records. Implementations never modify or delete a record.
type Recorder interface {
	Record(ctx context.Context, rec model.TokenUsageRecord) error
}

// Ledger is an append-only badger store of usage records keyed by document.
type Ledger struct {
	db  *badger.DB
	seq *badger.Sequence
}

type badgerLogger struct{}

func (badgerLogger) Errorf(msg string, args ...any)   { logger.Error(fmt.Sprintf("[Usage] "+msg, args...)) }
func (badgerLogger) Warningf(msg string, args ...any) { logger.Warn(fmt.Sprintf("[Usage] "+msg, args...)) }
func (badgerLogger) Infof(msg string, args ...any)    { logger.Debug(fmt.Sprintf("[Usage] "+msg, args...)) }
func (badgerLogger) Debugf(msg string, args ...any)   { logger.Debug(fmt.Sprintf("[Usage] "+msg, args...)) }

// OpenLedger opens a ledger at path, or an in-memory one when path is empty.
func OpenLedger(path string) (*Ledger, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create usage dir '%s': %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = badgerLogger{}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage ledger: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), seqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open usage sequence: %w", err)
	}
	return &Ledger{db: db, seq: seq}, nil
}

func (l *Ledger) Close() error {
	if err := l.seq.Release(); err != nil {
		logger.Warn("[Usage] failed to release sequence", "error", err)
	}
	return l.db.Close()
}

func (l *Ledger) Record(_ context.Context, rec model.TokenUsageRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	}
	n, err := l.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate usage key: %w", err)
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode usage record: %w", err)
	}
	key := []byte(fmt.Sprintf("%s%s/%020d", keyPrefix, rec.DocumentID, n))

	return l.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("usage record %s already exists", key)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, val)
	})
}

// ListByDocument returns the document's records in insertion order.
func (l *Ledger) ListByDocument(documentID string) ([]model.TokenUsageRecord, error) {
	var out []model.TokenUsageRecord
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix + documentID + "/")
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var rec model.TokenUsageRecord
			if err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list usage for %s: %w", documentID, err)
	}
	return out, nil
}

// Summary aggregates a document's usage.
type Summary struct {
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
}

func Summarize(records []model.TokenUsageRecord) Summary {
	var s Summary
	for _, r := range records {
		s.Calls++
		s.PromptTokens += r.PromptTokens
		s.CompletionTokens += r.CompletionTokens
		s.TotalTokens += r.TotalTokens
		s.EstimatedCost += r.EstimatedCost
	}
	return s
}
