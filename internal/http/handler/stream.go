package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/edirooss/loopcast/internal/http/dto"
	"github.com/edirooss/loopcast/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StreamController is the encoder supervisor as seen by the API.
type StreamController interface {
	Start(ctx context.Context) (int, error)
	Stop()
	Restart(ctx context.Context) (int, error)
	Status() service.Status
	Logs(n int) []string
}

// StreamHandler exposes the encoder lifecycle.
//
// Supported operations:
//   - POST /api/stream/start   → spawn the encoder
//   - POST /api/stream/stop    → kill the encoder (idempotent)
//   - POST /api/stream/restart → stop + start as one operation
//   - GET  /api/stream/status  → state, uptime and telemetry
//   - GET  /api/stream/logs    → stream log tail, oldest first
type StreamHandler struct {
	log *zap.Logger
	sup StreamController
}

// NewStreamHandler constructs a StreamHandler.
func NewStreamHandler(log *zap.Logger, sup StreamController) *StreamHandler {
	return &StreamHandler{log: log.Named("stream"), sup: sup}
}

// Start handles POST /api/stream/start.
//
// Status Codes:
//   - 200 OK → {"message", "pid"}
//   - 409 Conflict → already running
//   - 412 Precondition Failed → no video, no audio, missing media
//   - 422 Unprocessable Entity → settings cannot produce a command (no stream key)
//   - 500 Internal Server Error → spawn failure
func (h *StreamHandler) Start(c *gin.Context) {
	pid, err := h.sup.Start(c.Request.Context())
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stream started", "pid": pid})
}

// Stop handles POST /api/stream/stop. Always 200.
func (h *StreamHandler) Stop(c *gin.Context) {
	h.sup.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "Stream stopped"})
}

// Restart handles POST /api/stream/restart. Status codes as Start.
func (h *StreamHandler) Restart(c *gin.Context) {
	pid, err := h.sup.Restart(c.Request.Context())
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stream restarted", "pid": pid})
}

// Status handles GET /api/stream/status.
func (h *StreamHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewStreamStatus(h.sup.Status()))
}

// Logs handles GET /api/stream/logs[?lines=N]. Without lines every retained
// line is returned.
func (h *StreamHandler) Logs(c *gin.Context) {
	n := 0
	if s := c.Query("lines"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "lines must be a non-negative integer"})
			return
		}
		n = v
	}
	c.JSON(http.StatusOK, gin.H{"logs": h.sup.Logs(n)})
}
