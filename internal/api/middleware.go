package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/qualitygate/internal/authz"
)

// Request headers carrying the caller's identity. Authentication happens
// upstream; the API trusts these values.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const actorKey = "qualitygate.actor"

// requireActor rejects requests without a user ID and stores the actor on
// the context. A missing role means inspector.
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderUserID + " header"})
			return
		}
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole)))
		if role == "" {
			role = authz.RoleInspector
		}
		if !authz.ValidRole(role) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role " + role})
			return
		}
		c.Set(actorKey, authz.Actor{ID: id, Role: role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) authz.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(authz.Actor); ok {
			return a
		}
	}
	return authz.Actor{}
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "api: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"user", c.GetHeader(HeaderUserID),
		)
	}
}
