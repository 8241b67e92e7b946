package routes

import (
	"errors"
	"net/http"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/server/middleware"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/storage"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/query"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Stage string `json:"stage,omitempty"`
	Store string `json:"store,omitempty"`
}

func appFrom(c echo.Context) *middleware.App {
	return c.(*middleware.AppContext).App
}

// statusFor maps an error onto the HTTP status the API reports for it.
func statusFor(err error) int {
	switch {
	case errors.Is(err, query.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, query.ErrEmptyKnowledgeBase):
		return http.StatusConflict
	case errors.Is(err, query.ErrRetrievalUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, query.ErrSynthesisFailed):
		return http.StatusBadGateway
	case errors.Is(err, query.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(c echo.Context, err error) error {
	status := statusFor(err)
	res := errorResponse{Error: err.Error()}

	var qe *query.Error
	if errors.As(err, &qe) {
		res.Kind = string(qe.Kind)
		res.Stage = string(qe.Stage)
		res.Store = qe.Store
	}
	if status == http.StatusInternalServerError {
		logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
		res.Error = "Internal server error"
	}
	return c.JSON(status, res)
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: message})
}
