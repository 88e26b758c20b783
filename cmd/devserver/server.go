package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mediabridge/mediabridge/common/config"
	"github.com/mediabridge/mediabridge/common/logger"
	"github.com/mediabridge/mediabridge/common/models"
	"github.com/mediabridge/mediabridge/common/upload"
)

// Server exposes the bulk upload endpoint and the realtime channel
// over one echo instance
type Server struct {
	store *blobStore
	hub   *hub
	cfg   config.UploadConfig
	log   *logger.Logger
}

// NewServer creates the dev server
func NewServer(cfg config.UploadConfig, log *logger.Logger) *Server {
	return &Server{
		store: newBlobStore(),
		hub:   newHub(),
		cfg:   cfg,
		log:   log.WithComponent("devserver"),
	}
}

// Register mounts all routes on e
func (s *Server) Register(e *echo.Echo) {
	e.POST("/api/upload", s.handleUpload)
	e.GET("/api/upload", s.handleList)
	e.GET("/api/upload/:id", s.handleGet)
	e.DELETE("/api/upload/:id", s.handleDelete)
	e.GET("/ws", s.handleChannel)
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func jsonError(c echo.Context, code int, format string, args ...any) error {
	return c.JSON(code, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// handleUpload accepts one multipart request: a JSON metadata part and
// a binary file part
func (s *Server) handleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "error parsing multipart request: %v", err)
	}

	metaValues := form.Value["metadata"]
	if len(metaValues) == 0 {
		// Some clients send metadata as a file-typed part
		if fhs := form.File["metadata"]; len(fhs) > 0 {
			f, err := fhs[0].Open()
			if err != nil {
				return jsonError(c, http.StatusBadRequest, "failed to read metadata: %v", err)
			}
			defer f.Close()
			raw, err := io.ReadAll(f)
			if err != nil {
				return jsonError(c, http.StatusBadRequest, "failed to read metadata: %v", err)
			}
			metaValues = []string{string(raw)}
		}
	}
	if len(metaValues) == 0 {
		return jsonError(c, http.StatusBadRequest, "missing metadata field in multipart request")
	}

	var req upload.UploadRequest
	if err := json.Unmarshal([]byte(metaValues[0]), &req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid metadata JSON: %v", err)
	}

	fileHeaders := form.File["file"]
	if len(fileHeaders) == 0 {
		return jsonError(c, http.StatusBadRequest, "missing file field in multipart request")
	}

	src, err := fileHeaders[0].Open()
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "failed to read file: %v", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "failed to read file: %v", err)
	}

	if int64(len(data)) > s.cfg.MaxFileSize {
		return jsonError(c, http.StatusRequestEntityTooLarge,
			"file size %d exceeds maximum of %d bytes", len(data), s.cfg.MaxFileSize)
	}

	if !models.ValidDigest(req.SHA256) {
		return jsonError(c, http.StatusBadRequest, "sha256 must be 64 lowercase hex characters")
	}
	if digest := models.HashBytes(data); digest != req.SHA256 {
		return jsonError(c, http.StatusBadRequest,
			"declared sha256 %s does not match payload digest %s", req.SHA256, digest)
	}
	if req.Size != int64(len(data)) {
		return jsonError(c, http.StatusBadRequest,
			"declared size %d does not match payload length %d", req.Size, len(data))
	}

	now := time.Now().UTC()
	blob := models.MediaBlob{
		ID:        uuid.NewString(),
		Data:      data,
		SHA256:    req.SHA256,
		Size:      req.Size,
		Mime:      req.MimeType,
		LocalPath: req.Filename,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cid, ok := blob.Metadata["source_client_id"].(string); ok {
		blob.SourceClientID = cid
	}

	if existingID, ok := s.store.Add(blob); !ok {
		return jsonError(c, http.StatusConflict, "file already exists with id %s", existingID)
	}

	s.log.Info("bulk upload stored", "blob_id", blob.ID, "size", blob.Size, "file", req.Filename)
	return c.JSON(http.StatusCreated, upload.UploadResponse{
		ID:        blob.ID,
		LocalPath: blob.LocalPath,
		SHA256:    blob.SHA256,
		Size:      blob.Size,
		MimeType:  blob.Mime,
		CreatedAt: blob.CreatedAt,
	})
}

type listResponse struct {
	Items      []models.MediaBlob `json:"items"`
	TotalCount int                `json:"total_count"`
	Limit      int                `json:"limit,omitempty"`
	Offset     int                `json:"offset"`
}

func (s *Server) handleList(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	items, total := s.store.List(limit, offset)
	return c.JSON(http.StatusOK, listResponse{
		Items:      items,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Server) handleGet(c echo.Context) error {
	blob, ok := s.store.Get(c.Param("id"), false)
	if !ok {
		return jsonError(c, http.StatusNotFound, "blob not found")
	}
	return c.JSON(http.StatusOK, blob)
}

func (s *Server) handleDelete(c echo.Context) error {
	if !s.store.Delete(c.Param("id")) {
		return jsonError(c, http.StatusNotFound, "blob not found")
	}
	return c.NoContent(http.StatusNoContent)
}
