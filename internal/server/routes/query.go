package routes

import (
	"net/http"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/metrics"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/query"

	"github.com/labstack/echo/v4"
)

// QueryHandler answers a question against the knowledge base.
func QueryHandler(c echo.Context) error {
	data := new(query.Request)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "question is required")
	}

	mode := data.Mode
	if mode == "" {
		mode = query.ModeHybrid
	}
	label := string(mode)
	if !mode.Valid() {
		label = "invalid"
	}

	start := time.Now()
	res, err := appFrom(c).Engine.Query(c.Request().Context(), *data)
	metrics.ObserveQuery(label, res, err, time.Since(start))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// QueryHealthHandler reports whether both stores respond.
func QueryHealthHandler(c echo.Context) error {
	health := appFrom(c).Engine.Health(c.Request().Context())
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, health)
}

// QueryStatsHandler reports how much the vector side has indexed.
func QueryStatsHandler(c echo.Context) error {
	type queryStatsResponse struct {
		TotalChunksIndexed int    `json:"total_chunks_indexed"`
		TotalDocuments     int    `json:"total_documents"`
		KnowledgeBase      string `json:"knowledge_base"`
	}

	app := appFrom(c)
	stats, err := app.Store.Stats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, queryStatsResponse{
		TotalChunksIndexed: stats.Chunks,
		TotalDocuments:     stats.Documents,
		KnowledgeBase:      app.Engine.KnowledgeBase().Name,
	})
}
