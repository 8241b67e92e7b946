package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorUnwrapsKindAndCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: %w", context.DeadlineExceeded)

	tests := []struct {
		name     string
		err      *Error
		sentinel error
		contains string
	}{
		{"StoreTimeout", storeError(StageRetrieve, StoreGraph, cause), ErrTimeout, "store: graph"},
		{"StoreDown", storeError(StageRetrieve, StoreVector, errors.New("refused")), ErrRetrievalUnavailable, "store: vector"},
		{"EmbedTimeout", embedError("ollama", cause), ErrTimeout, "provider: ollama"},
		{"Synthesis", synthesisError("openai", errors.New("quota")), ErrSynthesisFailed, "during reason"},
		{"Invalid", invalidRequest("top_k must be at least 1"), ErrInvalidRequest, "top_k"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var err error = tc.err
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("errors.Is(%v, %v) = false", err, tc.sentinel)
			}
			if tc.err.Err != nil && !errors.Is(err, tc.err.Err) {
				t.Fatalf("cause not reachable through %v", err)
			}
			if !strings.Contains(err.Error(), tc.contains) {
				t.Fatalf("message %q lacks %q", err.Error(), tc.contains)
			}
			if kind, ok := KindOf(fmt.Errorf("wrapped: %w", err)); !ok || kind != tc.err.Kind {
				t.Fatalf("KindOf = %q, %v", kind, ok)
			}
		})
	}

	if !errors.Is(storeError(StageRetrieve, StoreGraph, cause), context.DeadlineExceeded) {
		t.Fatalf("timeout error should unwrap to context.DeadlineExceeded")
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("KindOf matched a plain error")
	}
}
