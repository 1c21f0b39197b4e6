package ratelimit

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"syscall"
)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

type retryable struct{ err error }

func (r retryable) Error() string   { return r.err.Error() }
func (r retryable) Unwrap() error   { return r.err }
func (r retryable) Retryable() bool { return true }

// MarkRetryable flags err as transient regardless of its type or message.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return retryable{err: err}
}

var transientMessage = regexp.MustCompile(`(?i)time(d)?[ -]?out|unavailable|overloaded|rate[ _-]?limit|too many requests|connection reset|try again|internal server error|api_error`)

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var marked interface{ Retryable() bool }
	if errors.As(err, &marked) && marked.Retryable() {
		return true
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code > 0 {
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return transientMessage.MatchString(err.Error())
}
