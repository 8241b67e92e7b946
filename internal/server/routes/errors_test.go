package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/storage"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/query"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	"github.com/labstack/echo/v4"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "InvalidRequest", err: &query.Error{Kind: query.KindInvalidRequest}, want: http.StatusBadRequest},
		{name: "StoreNotFound", err: fmt.Errorf("entity x: %w", store.ErrNotFound), want: http.StatusNotFound},
		{name: "FileNotFound", err: storage.ErrNotFound, want: http.StatusNotFound},
		{name: "Empty", err: &query.Error{Kind: query.KindEmptyKnowledgeBase}, want: http.StatusConflict},
		{name: "Unavailable", err: &query.Error{Kind: query.KindRetrievalUnavailable, Store: query.StoreGraph}, want: http.StatusServiceUnavailable},
		{name: "Synthesis", err: &query.Error{Kind: query.KindSynthesisFailed}, want: http.StatusBadGateway},
		{name: "Timeout", err: &query.Error{Kind: query.KindTimeout, Err: context.DeadlineExceeded}, want: http.StatusGatewayTimeout},
		{name: "Other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := writeError(c, errors.New("connection refused to 10.0.0.3")); err != nil {
		t.Fatalf("writeError: %v", err)
	}
	var res errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusInternalServerError || res.Error != "Internal server error" {
		t.Fatalf("unexpected response %d %#v", rec.Code, res)
	}
}

func TestWriteErrorReportsKind(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := &query.Error{Kind: query.KindRetrievalUnavailable, Stage: query.StageRetrieve, Store: query.StoreVector, Err: errors.New("down")}
	if err := writeError(c, err); err != nil {
		t.Fatalf("writeError: %v", err)
	}
	var res errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Kind != string(query.KindRetrievalUnavailable) || res.Store != query.StoreVector || res.Stage != string(query.StageRetrieve) {
		t.Fatalf("unexpected response %#v", res)
	}
}
