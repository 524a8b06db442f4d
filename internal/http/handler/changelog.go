package handler

import (
	"net/http"

	"github.com/edirooss/loopcast/internal/changelog"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChangelogHandler serves CHANGELOG.md entries.
type ChangelogHandler struct {
	log *zap.Logger
	cl  *changelog.Changelog
}

// NewChangelogHandler constructs a ChangelogHandler.
func NewChangelogHandler(log *zap.Logger, cl *changelog.Changelog) *ChangelogHandler {
	return &ChangelogHandler{log: log.Named("changelog"), cl: cl}
}

// List handles GET /api/changelog.
func (h *ChangelogHandler) List(c *gin.Context) {
	entries, err := h.cl.Entries()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Add handles POST /api/changelog.
//
// Status Codes:
//   - 201 Created → stored entry (date defaults to today)
//   - 400 Bad Request → invalid JSON
//   - 422 Unprocessable Entity → missing title
func (h *ChangelogHandler) Add(c *gin.Context) {
	var req changelog.Entry
	if err := bind(c.Request, &req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	e, err := h.cl.Add(req)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, e)
}
