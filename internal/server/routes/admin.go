package routes

import (
	"net/http"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/storage"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ClearHandler removes every entity, relationship, chunk and document along
// with the uploaded files.
func ClearHandler(c echo.Context) error {
	type clearResponse struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}

	ctx := c.Request().Context()
	app := appFrom(c)
	if err := app.Store.Clear(ctx); err != nil {
		return writeError(c, err)
	}
	if err := app.Files.DeleteFolder(ctx, storage.UploadPrefix); err != nil {
		logger.Warn("[Admin] Knowledge base cleared but uploads remain", "err", err)
		return c.JSON(http.StatusOK, clearResponse{
			Status:  "partial",
			Message: "Knowledge base cleared, uploaded files could not be deleted",
		})
	}

	logger.Info("[Admin] Cleared all data")
	return c.JSON(http.StatusOK, clearResponse{
		Status:  "success",
		Message: "All data cleared successfully",
	})
}
