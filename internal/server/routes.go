package server

import (
	"net/http"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/metrics"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	apiRoutes := e.Group("/api")

	// Query routes
	apiRoutes.POST("/query", routes.QueryHandler)
	apiRoutes.GET("/query/health", routes.QueryHealthHandler)
	apiRoutes.GET("/query/stats", routes.QueryStatsHandler)

	// Graph exploration routes
	apiRoutes.GET("/graph", routes.GetGraphHandler)
	apiRoutes.GET("/graph/entity/:id", routes.GetEntityHandler)
	apiRoutes.GET("/graph/path", routes.GetPathHandler)
	apiRoutes.GET("/graph/stats", routes.GetGraphStatsHandler)
	apiRoutes.GET("/graph/entity-types", routes.GetEntityTypesHandler)

	// Upload routes
	apiRoutes.POST("/upload", routes.UploadHandler)
	apiRoutes.POST("/upload/url", routes.UploadURLHandler)
	apiRoutes.GET("/upload/status/:id", routes.UploadStatusHandler)

	// File routes
	apiRoutes.GET("/files", routes.ListFilesHandler)
	apiRoutes.POST("/files/search", routes.SearchFilesHandler)
	apiRoutes.GET("/files/:id", routes.GetFileHandler)
	apiRoutes.GET("/files/:id/download", routes.DownloadFileHandler)

	// Admin routes
	apiRoutes.DELETE("/admin/clear", routes.ClearHandler)
}
