package handler

import (
	"fmt"
	"net/http"

	"github.com/edirooss/loopcast/internal/http/dto"
	"github.com/edirooss/loopcast/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SettingsHandler reads and updates stream settings. Changes apply on the
// next encoder start.
type SettingsHandler struct {
	log *zap.Logger
	svc *service.SettingsService
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(log *zap.Logger, svc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{log: log.Named("settings"), svc: svc}
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	s, err := h.svc.GetSettings(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Save handles POST /api/settings.
//
// Behavior:
//   - Keys absent from the body keep their stored value.
//   - The merged settings are validated as a whole.
//
// Status Codes:
//   - 200 OK → saved settings
//   - 400 Bad Request → invalid JSON or unknown key
//   - 422 Unprocessable Entity → value out of range or null
//   - 500 Internal Server Error
func (h *SettingsHandler) Save(c *gin.Context) {
	var req dto.SettingsUpdate
	if err := bind(c.Request, &req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if f := req.NullField(); f != "" {
		fail(c, http.StatusUnprocessableEntity, fmt.Errorf("%s: must not be null", f))
		return
	}

	ctx := c.Request.Context()
	cur, err := h.svc.GetSettings(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	saved, err := h.svc.SaveSettings(ctx, req.Apply(cur))
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
