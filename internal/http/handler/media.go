package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/edirooss/loopcast/internal/http/dto"
	"github.com/edirooss/loopcast/internal/infrastructure/configstore"
	"github.com/edirooss/loopcast/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MediaHandler manages the media library and selection.
//
// Supported operations:
//   - GET    /api/media           → library listing with selection flags
//   - POST   /api/media/selection → save video + audio playlist
//   - POST   /api/media/loop      → set the video loop flag
//   - POST   /api/media/upload    → multipart upload ("files", "type")
//   - DELETE /api/media           → delete one library file
type MediaHandler struct {
	log *zap.Logger
	svc *service.MediaService
}

// NewMediaHandler constructs a MediaHandler.
func NewMediaHandler(log *zap.Logger, svc *service.MediaService) *MediaHandler {
	return &MediaHandler{log: log.Named("media"), svc: svc}
}

// List handles GET /api/media.
func (h *MediaHandler) List(c *gin.Context) {
	ls, err := h.svc.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, ls)
}

// SaveSelection handles POST /api/media/selection.
func (h *MediaHandler) SaveSelection(c *gin.Context) {
	var req dto.MediaSelectionSave
	if err := bind(c.Request, &req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	var video string
	if req.Video != nil {
		video = *req.Video
	}

	sel, err := h.svc.SaveSelection(c.Request.Context(), video, req.AudioPlaylist)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, sel)
}

// SetLoop handles POST /api/media/loop.
func (h *MediaHandler) SetLoop(c *gin.Context) {
	var req dto.VideoLoop
	if err := bind(c.Request, &req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if req.VideoLooping == nil {
		fail(c, http.StatusUnprocessableEntity, errors.New("videoLooping is required"))
		return
	}

	sel, err := h.svc.SetLoop(c.Request.Context(), *req.VideoLooping)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, sel)
}

// Upload handles POST /api/media/upload.
//
// Status Codes:
//   - 200 OK → {"message", "files"}
//   - 400 Bad Request → no files, unknown type or unsupported extension
//   - 500 Internal Server Error
func (h *MediaHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	kind, err := configstore.ParseKind(c.PostForm("type"))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		fail(c, http.StatusBadRequest, errors.New("no files provided"))
		return
	}

	uploaded := make([]service.MediaItem, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, fmt.Errorf("open %s: %w", fh.Filename, err))
			return
		}
		item, err := h.svc.Upload(kind, fh.Filename, f)
		f.Close()
		if err != nil {
			fail(c, statusFor(err), err)
			return
		}
		uploaded = append(uploaded, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%d file(s) uploaded", len(uploaded)),
		"files":   uploaded,
	})
}

// Delete handles DELETE /api/media.
func (h *MediaHandler) Delete(c *gin.Context) {
	var req dto.MediaDelete
	if err := bind(c.Request, &req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if req.FilePath == "" {
		fail(c, http.StatusBadRequest, errors.New("filePath is required"))
		return
	}
	if req.Type != "" {
		if _, err := configstore.ParseKind(req.Type); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
	}

	if err := h.svc.Delete(c.Request.Context(), req.FilePath); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted"})
}
