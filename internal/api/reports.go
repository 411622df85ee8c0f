package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/qualitygate/internal/activity"
	"github.com/zulandar/qualitygate/internal/imagestore"
	"github.com/zulandar/qualitygate/internal/stats"
)

func (h *handlers) defectStats(c *gin.Context) {
	rep, err := h.svc.Stats.Compute(c.Request.Context(), stats.Filter{
		ProductID: c.Query("productId"),
		From:      c.Query("from"),
		To:        c.Query("to"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) listActivities(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	out, err := h.svc.Activities.List(c.Request.Context(), activity.ListFilters{
		ActorID: c.Query("actorId"),
		Action:  c.Query("action"),
		Limit:   limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) image(c *gin.Context) {
	f, err := h.svc.Images.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, imagestore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
			return
		}
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, f.ContentType, f.Data)
}

func (h *handlers) health(c *gin.Context) {
	sqlDB, err := h.svc.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		h.logger.Error("api: health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
