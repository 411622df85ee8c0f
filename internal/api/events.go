package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// Polling and heartbeat cadence of the activity stream.
var (
	eventPollInterval = 3 * time.Second
	heartbeatInterval = 15 * time.Second
)

// activityEvent is the payload of an "activity" SSE event.
type activityEvent struct {
	ID          uint      `json:"id"`
	ActorID     string    `json:"actorId"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// events streams new audit trail entries as server-sent events until the
// client goes away.
func (h *handlers) events(c *gin.Context) {
	ctx := c.Request.Context()
	lastSeen, err := h.svc.Activities.LatestID(ctx)
	if err != nil {
		h.fail(c, fmt.Errorf("api: events: latest activity: %w", err))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
	c.Writer.Flush()

	ticker := time.NewTicker(eventPollInterval)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-ticker.C:
			fresh, err := h.svc.Activities.Since(ctx, lastSeen, 100)
			if err != nil {
				h.logger.Warn("api: events: poll activities", "error", err)
				continue
			}
			for _, a := range fresh {
				writeSSE(c.Writer, "activity", activityEvent{
					ID:          a.ID,
					ActorID:     a.ActorID,
					Action:      a.Action,
					Description: a.Description,
					CreatedAt:   a.CreatedAt,
				})
				lastSeen = a.ID
			}
			if len(fresh) > 0 {
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
