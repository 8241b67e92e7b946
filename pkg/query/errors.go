package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a query failed.
type Kind string

const (
	KindInvalidRequest       Kind = "invalid_request"
	KindEmptyKnowledgeBase   Kind = "empty_knowledge_base"
	KindRetrievalUnavailable Kind = "retrieval_unavailable"
	KindSynthesisFailed      Kind = "synthesis_failed"
	KindTimeout              Kind = "timeout"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrEmptyKnowledgeBase   = errors.New("knowledge base is empty")
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrSynthesisFailed      = errors.New("answer synthesis failed")
	ErrTimeout              = errors.New("timed out")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidRequest:
		return ErrInvalidRequest
	case KindEmptyKnowledgeBase:
		return ErrEmptyKnowledgeBase
	case KindRetrievalUnavailable:
		return ErrRetrievalUnavailable
	case KindSynthesisFailed:
		return ErrSynthesisFailed
	case KindTimeout:
		return ErrTimeout
	}
	return nil
}

// Stage names the step of a query that produced an error.
type Stage string

const (
	StageValidate Stage = "validate"
	StageCheck    Stage = "check"
	StageEmbed    Stage = "embed"
	StageRetrieve Stage = "retrieve"
	StageReason   Stage = "reason"
)

const (
	StoreVector = "vector"
	StoreGraph  = "graph"
)

// Error is returned by every Engine operation. It unwraps to both the
// sentinel for its Kind and the underlying cause.
type Error struct {
	Kind     Kind
	Stage    Stage
	Store    string
	Provider string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.sentinel().Error())
	if e.Stage != "" {
		fmt.Fprintf(&b, " during %s", e.Stage)
	}
	if e.Store != "" {
		fmt.Fprintf(&b, " (store: %s)", e.Store)
	}
	if e.Provider != "" {
		fmt.Fprintf(&b, " (provider: %s)", e.Provider)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf extracts the Kind of err, if it is a query error.
func KindOf(err error) (Kind, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return "", false
}

func invalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Stage: StageValidate, Err: fmt.Errorf(format, args...)}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// storeError classifies a failed store call. Deadlines become Timeout,
// everything else makes the store unavailable.
func storeError(stage Stage, storeName string, err error) *Error {
	kind := KindRetrievalUnavailable
	if isTimeout(err) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Stage: stage, Store: storeName, Err: err}
}

// embedError classifies a failed embedding call. The embedding provider
// feeds the vector side, so a non-timeout failure makes it unavailable.
func embedError(provider string, err error) *Error {
	kind := KindRetrievalUnavailable
	if isTimeout(err) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Stage: StageEmbed, Store: StoreVector, Provider: provider, Err: err}
}

func synthesisError(provider string, err error) *Error {
	kind := KindSynthesisFailed
	if isTimeout(err) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Stage: StageReason, Provider: provider, Err: err}
}
