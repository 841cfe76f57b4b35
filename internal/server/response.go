package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaz8081/gostt-tray/internal/audio"
	"github.com/chaz8081/gostt-tray/internal/history"
	"github.com/chaz8081/gostt-tray/internal/modes"
	"github.com/chaz8081/gostt-tray/internal/provider"
	"github.com/chaz8081/gostt-tray/internal/session"
	"github.com/chaz8081/gostt-tray/internal/validate"
)

// success writes {"success": true, "data": data}.
func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// fail writes {"success": false, "error": msg} with code.
func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}

// failErr maps err to a status code and writes the error envelope.
func failErr(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		slog.Error("[Server] request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}

	var verr *validate.Error
	if errors.As(err, &verr) {
		c.JSON(code, gin.H{
			"success": false,
			"error":   err.Error(),
			"fields":  verr.Fields,
		})
		return
	}
	fail(c, code, err.Error())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyRecording),
		errors.Is(err, session.ErrNotRecording),
		errors.Is(err, session.ErrNotReady),
		errors.Is(err, modes.ErrBuiltinMode):
		return http.StatusConflict
	case errors.Is(err, audio.ErrDeviceUnavailable),
		errors.Is(err, provider.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, audio.ErrEmptyRecording),
		errors.Is(err, session.ErrNothingToReprocess):
		return http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrCredentialMissing):
		return http.StatusPreconditionFailed
	case errors.Is(err, history.ErrNotFound),
		errors.Is(err, modes.ErrModeNotFound):
		return http.StatusNotFound
	case errors.Is(err, validate.ErrInvalid),
		errors.Is(err, session.ErrEmptyText),
		errors.Is(err, session.ErrInvalidDeepLink),
		errors.Is(err, history.ErrUnknownFormat),
		errors.Is(err, provider.ErrUnknownProvider):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
