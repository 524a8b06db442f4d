package handler

import (
	"errors"
	"net/http"

	"github.com/edirooss/loopcast/internal/changelog"
	"github.com/edirooss/loopcast/internal/domain/stream"
	"github.com/edirooss/loopcast/internal/infrastructure/configstore"
	"github.com/edirooss/loopcast/internal/service"
	"github.com/edirooss/loopcast/pkg/jsonx"
	"github.com/gin-gonic/gin"
)

// bind strictly decodes the JSON request body into obj.
func bind[T any](req *http.Request, obj *T) error {
	if req == nil || req.Body == nil {
		return jsonx.ErrEmptyBody
	}
	return jsonx.DecodeStrict(req.Body, obj)
}

// statusFor maps service errors to HTTP status codes.
//
//   - 400 Bad Request          → unsupported media, path outside the library
//   - 404 Not Found            → media file missing on delete
//   - 409 Conflict             → encoder already running
//   - 412 Precondition Failed  → selection cannot be streamed
//   - 422 Unprocessable Entity → settings out of bounds, empty changelog title
//   - 500 Internal Server Error
func statusFor(err error) int {
	switch {
	case errors.Is(err, stream.ErrInvalidConfiguration),
		errors.Is(err, changelog.ErrEmptyTitle):
		return http.StatusUnprocessableEntity
	case service.IsPrecondition(err):
		return http.StatusPreconditionFailed
	case errors.Is(err, stream.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, configstore.ErrUnsupportedMedia),
		errors.Is(err, configstore.ErrOutsideLibrary):
		return http.StatusBadRequest
	case errors.Is(err, configstore.ErrMediaNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail records err on the context for the access log and writes {"message": ...}.
func fail(c *gin.Context, code int, err error) {
	c.Error(err)
	c.JSON(code, gin.H{"message": err.Error()})
}
