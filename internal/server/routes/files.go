package routes

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/storage"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/query"

	"github.com/labstack/echo/v4"
)

type fileInfo struct {
	FileID            string `json:"file_id"`
	Filename          string `json:"filename"`
	FileType          string `json:"file_type"`
	UploadDate        string `json:"upload_date"`
	Status            string `json:"status"`
	EntityCount       int    `json:"entity_count"`
	RelationshipCount int    `json:"relationship_count"`
	ChunkCount        int    `json:"chunk_count"`
}

func toFileInfo(s common.DocumentStatus) fileInfo {
	info := fileInfo{
		FileID:            s.ID,
		Filename:          s.Filename,
		FileType:          s.FileType,
		Status:            s.Stage,
		EntityCount:       s.EntityCount,
		RelationshipCount: s.RelationshipCount,
		ChunkCount:        s.ChunkCount,
	}
	if !s.CreatedAt.IsZero() {
		info.UploadDate = s.CreatedAt.Format(time.RFC3339)
	}
	return info
}

// ListFilesHandler lists uploaded documents, optionally of one file type.
func ListFilesHandler(c echo.Context) error {
	docs, err := appFrom(c).Store.ListDocuments(c.Request().Context(), strings.ToLower(c.QueryParam("file_type")))
	if err != nil {
		return writeError(c, err)
	}
	files := make([]fileInfo, 0, len(docs))
	for _, d := range docs {
		files = append(files, toFileInfo(d))
	}
	return c.JSON(http.StatusOK, files)
}

func GetFileHandler(c echo.Context) error {
	status, err := appFrom(c).Store.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toFileInfo(status))
}

// DownloadFileHandler serves the original upload. Stores that can sign links
// redirect there; web pages redirect to their address.
func DownloadFileHandler(c echo.Context) error {
	ctx := c.Request().Context()
	app := appFrom(c)

	status, err := app.Store.GetStatus(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if status.FileType == string(loader.FileTypeURL) {
		return c.Redirect(http.StatusFound, status.FileKey)
	}
	if status.FileKey == "" {
		return writeError(c, fmt.Errorf("document %s has no stored file: %w", status.ID, storage.ErrNotFound))
	}

	if links, ok := app.Files.(storage.LinkGenerator); ok {
		link, err := links.DownloadLink(ctx, status.FileKey)
		if err == nil {
			return c.Redirect(http.StatusFound, link)
		}
		logger.Debug("[Files] Falling back to streaming download", "doc_id", status.ID, "err", err)
	}

	body, err := app.Files.Open(ctx, status.FileKey)
	if err != nil {
		return writeError(c, err)
	}
	defer body.Close()

	contentType := mime.TypeByExtension(path.Ext(status.Filename))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": status.Filename}))
	return c.Stream(http.StatusOK, contentType, body)
}

// SearchFilesHandler ranks documents against a free-text query.
func SearchFilesHandler(c echo.Context) error {
	data := new(query.FileSearchRequest)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "query is required and top_k must be between 1 and 50")
	}

	res, err := appFrom(c).Engine.SearchFiles(c.Request().Context(), *data)
	if err != nil {
		var qe *query.Error
		if !errors.As(err, &qe) {
			logger.Error("[Files] Search failed", "err", err)
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
