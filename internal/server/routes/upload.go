package routes

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/queue"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/storage"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader/web"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

type uploadResponse struct {
	DocID    string  `json:"doc_id"`
	Filename string  `json:"filename"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

func uploadTypeList() string {
	names := make([]string, len(loader.UploadTypes))
	for i, t := range loader.UploadTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// register records doc and hands it to the dispatcher. The returned status
// is the one clients poll.
func register(c echo.Context, doc common.Document) error {
	ctx := c.Request().Context()
	app := appFrom(c)

	status, err := app.Registrar.Register(ctx, doc)
	if err != nil {
		logger.Error("[Upload] Failed to register document", "doc_id", doc.ID, "err", err)
		return writeError(c, err)
	}
	if err := app.Dispatcher.Dispatch(ctx, queue.NewIngestMessage(doc)); err != nil {
		logger.Error("[Upload] Failed to queue document", "doc_id", doc.ID, "err", err)
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "Failed to queue document for processing"})
	}

	logger.Info("[Upload] Document queued", "doc_id", doc.ID, "filename", doc.Filename, "file_type", doc.FileType)
	return c.JSON(http.StatusAccepted, uploadResponse{
		DocID:    doc.ID,
		Filename: doc.Filename,
		Status:   status.Stage,
		Progress: status.Progress,
		Message:  status.Message,
	})
}

// UploadHandler stores a multipart "file" and queues it for ingestion.
func UploadHandler(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "Missing file")
	}
	fileType, err := loader.FileTypeFromName(file.Filename)
	if err != nil {
		return badRequest(c, fmt.Sprintf("Unsupported file type. Allowed: %s", uploadTypeList()))
	}

	src, err := file.Open()
	if err != nil {
		return badRequest(c, "Invalid file")
	}
	defer src.Close()

	id, err := util.NewID()
	if err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	key, err := appFrom(c).Files.PutFile(ctx, storage.UploadPrefix, file.Filename, id, src)
	if err != nil {
		logger.Error("[Upload] Failed to store file", "filename", file.Filename, "err", err)
		return writeError(c, err)
	}

	return register(c, common.Document{
		ID:        id,
		Filename:  file.Filename,
		FileType:  string(fileType),
		FileKey:   key,
		CreatedAt: time.Now().UTC(),
	})
}

// UploadURLHandler queues a web page for ingestion.
func UploadURLHandler(c echo.Context) error {
	type uploadURLBody struct {
		URL string `json:"url" validate:"required"`
	}

	data := new(uploadURLBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "url is required")
	}
	u, err := web.ValidateURL(data.URL)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id, err := util.NewID()
	if err != nil {
		return writeError(c, err)
	}
	return register(c, common.Document{
		ID:        id,
		Filename:  u.Host + u.EscapedPath(),
		FileType:  string(loader.FileTypeURL),
		FileKey:   u.String(),
		CreatedAt: time.Now().UTC(),
	})
}

// UploadStatusHandler returns where a document is in the pipeline.
func UploadStatusHandler(c echo.Context) error {
	status, err := appFrom(c).Store.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}
