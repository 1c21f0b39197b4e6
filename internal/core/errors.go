package core

import (
	"errors"
	"fmt"

	"github.com/agenthands/docgraph/internal/core/model"
)

type ErrorKind string

const (
	KindValidationLimitExceeded ErrorKind = "validation_limit_exceeded"
	KindParseFailure            ErrorKind = "parse_failure"
	KindExtractionFailure       ErrorKind = "extraction_failure"
	KindEmbeddingFailure        ErrorKind = "embedding_failure"
	KindPersistenceFailure      ErrorKind = "persistence_failure"
	KindCheckpointFailure       ErrorKind = "checkpoint_failure"
	KindCanceled                ErrorKind = "canceled"
)

// PhaseError is returned by Process for every failed run. Retryable tells the
// caller whether invoking Process again may succeed; the cache makes that
// second run resume from the last completed checkpoint.
type PhaseError struct {
	Kind       ErrorKind
	Phase      model.Phase
	DocumentID string
	Retryable  bool
	Err        error
}

func (e *PhaseError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("%s in %s phase: %v", e.Kind, e.Phase, e.Err)
	}
	return fmt.Sprintf("%s in %s phase of document %s: %v", e.Kind, e.Phase, e.DocumentID, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Is matches any PhaseError of the same kind, so errors.Is(err, ErrParseFailure) works.
func (e *PhaseError) Is(target error) bool {
	t, ok := target.(*PhaseError)
	return ok && t.Kind == e.Kind && (t.Phase == "" || t.Phase == e.Phase)
}

var (
	ErrValidationLimitExceeded = &PhaseError{Kind: KindValidationLimitExceeded}
	ErrParseFailure            = &PhaseError{Kind: KindParseFailure}
	ErrExtractionFailure       = &PhaseError{Kind: KindExtractionFailure}
	ErrEmbeddingFailure        = &PhaseError{Kind: KindEmbeddingFailure}
	ErrPersistenceFailure      = &PhaseError{Kind: KindPersistenceFailure}
	ErrCheckpointFailure       = &PhaseError{Kind: KindCheckpointFailure}
	ErrCanceled                = &PhaseError{Kind: KindCanceled}
)

// ErrLimit is wrapped by limit violations and carries the offending numbers.
var ErrLimit = errors.New("limit exceeded")

// KindOf returns the kind of the first PhaseError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// IsRetryable reports whether a failed Process call is worth repeating.
func IsRetryable(err error) bool {
	var pe *PhaseError
	return errors.As(err, &pe) && pe.Retryable
}
