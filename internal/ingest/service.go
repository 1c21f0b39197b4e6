// Package ingest runs pipeline jobs in the background and tracks their status.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/agenthands/docgraph/internal/core"
	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/logger"
)

var (
	ErrAlreadyProcessing = errors.New("document is already being processed")
	ErrClosed            = errors.New("ingest service closed")
)

type Processor interface {
	Process(ctx context.Context, doc model.Document, raw []byte) (*core.Result, error)
}

type Status struct {
	DocumentID string               `json:"document_id"`
	Filename   string               `json:"filename"`
	Status     model.DocumentStatus `json:"status"`
	Phase      model.Phase          `json:"phase,omitempty"`
	Error      string               `json:"error,omitempty"`
	Retryable  bool                 `json:"retryable,omitempty"`
	Chunks     int                  `json:"chunks"`
	Nodes      int                  `json:"nodes"`
	Edges      int                  `json:"edges"`
	FromCache  bool                 `json:"from_cache"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Service runs documents on a bounded goroutine pool. It never runs the same
// document id twice at once, which keeps cache access for an id single-writer.
//
// Service is also an events.Observer: wire it into the pipeline to have the
// current phase show up in Status.
type Service struct {
	proc Processor
	pool *ants.Pool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	statuses map[string]*Status
	closed   bool
}

func NewService(proc Processor, workers int) (*Service, error) {
	pool, err := ants.NewPool(max(workers, 1), ants.WithPanicHandler(func(p interface{}) {
		logger.Error("[Ingest] worker panicked", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		proc:     proc,
		pool:     pool,
		ctx:      ctx,
		cancel:   cancel,
		statuses: make(map[string]*Status),
	}, nil
}

// Submit queues doc for background processing and returns immediately.
func (s *Service) Submit(doc model.Document, raw []byte) error {
	if err := s.claim(doc); err != nil {
		return err
	}
	err := s.pool.Submit(func() {
		defer s.wg.Done()
		_, _ = s.run(s.ctx, doc, raw)
	})
	if err != nil {
		s.wg.Done()
		s.finish(doc.ID, nil, fmt.Errorf("failed to schedule document: %w", err))
		return err
	}
	logger.Info("[Ingest] document queued", "document_id", doc.ID, "filename", doc.Filename)
	return nil
}

// Run processes doc on the calling goroutine. Close waits for it like a
// submitted document.
func (s *Service) Run(ctx context.Context, doc model.Document, raw []byte) (*core.Result, error) {
	if err := s.claim(doc); err != nil {
		return nil, err
	}
	defer s.wg.Done()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	return s.run(ctx, doc, raw)
}

func (s *Service) run(ctx context.Context, doc model.Document, raw []byte) (*core.Result, error) {
	s.update(doc.ID, func(st *Status) { st.Status = model.StatusProcessing })
	res, err := s.proc.Process(ctx, doc, raw)
	s.finish(doc.ID, res, err)
	return res, err
}

// claim marks doc pending and counts it in wg. Both happen under mu so Close
// never waits on a counter that is still being raised.
func (s *Service) claim(doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if st, ok := s.statuses[doc.ID]; ok && (st.Status == model.StatusPending || st.Status == model.StatusProcessing) {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessing, doc.ID)
	}
	s.statuses[doc.ID] = &Status{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     model.StatusPending,
		UpdatedAt:  time.Now().UTC(),
	}
	s.wg.Add(1)
	return nil
}

func (s *Service) finish(documentID string, res *core.Result, err error) {
	s.update(documentID, func(st *Status) {
		if err != nil {
			st.Status = model.StatusFailed
			st.Error = err.Error()
			st.Retryable = core.IsRetryable(err)
			return
		}
		st.Status = model.StatusCompleted
		st.Phase = model.PhaseCompleted
		st.Error, st.Retryable = "", false
		st.Chunks = len(res.Chunks)
		st.Nodes = len(res.Graph.Nodes)
		st.Edges = len(res.Graph.Edges)
		st.FromCache = res.FromCache
	})
	if err != nil {
		logger.Warn("[Ingest] document failed", "document_id", documentID, "error", err, "retryable", core.IsRetryable(err))
	}
}

func (s *Service) update(documentID string, fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[documentID]
	if !ok {
		return
	}
	fn(st)
	st.UpdatedAt = time.Now().UTC()
}

// Notify records the phase a running document has reached.
func (s *Service) Notify(ev model.StatusEvent) {
	s.update(ev.DocumentID, func(st *Status) {
		if st.Status == model.StatusProcessing {
			st.Phase = ev.Phase
		}
	})
}

func (s *Service) Status(documentID string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[documentID]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

// Running returns the number of documents queued or in progress.
func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.statuses {
		if st.Status == model.StatusPending || st.Status == model.StatusProcessing {
			n++
		}
	}
	return n
}

// Close stops accepting documents and waits for running ones until ctx ends.
// Documents still running at that point are canceled; model calls already in
// flight finish on their own.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		<-done
		err = ctx.Err()
	}
	s.cancel()
	s.pool.Release()
	return err
}
