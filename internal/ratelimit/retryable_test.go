package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", statusErr{code: 429}, true},
		{"500", statusErr{code: 500}, true},
		{"503 wrapped", fmt.Errorf("call: %w", statusErr{code: 503}), true},
		{"400", statusErr{code: 400}, false},
		{"401 with timeout text is still a client error", fmt.Errorf("timeout: %w", statusErr{code: 401}), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"aborted", syscall.ECONNABORTED, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"message timeout", errors.New("upstream request timed out"), true},
		{"message unavailable", errors.New("Service Unavailable"), true},
		{"message overloaded", errors.New("overloaded_error: Overloaded"), true},
		{"bad json", errors.New("invalid character 'x'"), false},
		{"marked", MarkRetryable(errors.New("invalid character 'x'")), true},
		{"marked wrapped", fmt.Errorf("chunk 3: %w", MarkRetryable(errors.New("bad"))), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}
