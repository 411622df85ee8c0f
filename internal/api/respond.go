package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/qualitygate/internal/apperr"
)

type handlers struct {
	svc    Services
	logger *slog.Logger
}

var errInvalidLimit = errors.New("limit must be a non-negative integer")

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error. Unexpected errors are logged and
// reported with a generic message.
func (h *handlers) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if kind == apperr.Unexpected {
		h.logger.Error("api: unexpected error", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		c.JSON(status, gin.H{"error": "internal error", "kind": kind.String()})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}

// badRequest reports a request body or parameter that could not be parsed.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": apperr.InvalidInput.String()})
}

// queryLimit parses the optional limit query parameter.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, errInvalidLimit)
		return 0, false
	}
	return n, true
}
