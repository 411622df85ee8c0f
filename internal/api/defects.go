package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/qualitygate/internal/defect"
)

// defectPatchRequest accepts measurements either as a JSON object or as an
// encoded JSON string, as sent by form-based clients.
type defectPatchRequest struct {
	defect.Patch
	Measurements json.RawMessage `json:"measurements"`
}

func (r defectPatchRequest) toPatch() (defect.Patch, error) {
	p := r.Patch
	raw := bytes.TrimSpace(r.Measurements)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return p, fmt.Errorf("measurements: %w", err)
		}
		p.MeasurementsRaw = &s
	default:
		if err := json.Unmarshal(raw, &p.Measurements); err != nil {
			return p, fmt.Errorf("measurements must be an object: %w", err)
		}
	}
	return p, nil
}

type bulkRequest struct {
	Defects []defect.CreateOpts `json:"defects"`
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

func (h *handlers) createDefect(c *gin.Context) {
	var opts defect.CreateOpts
	if err := c.ShouldBindJSON(&opts); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.svc.Defects.Create(c.Request.Context(), actorFrom(c), opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// bulkCreateDefects answers 201 when every item was created and 207 when
// some were skipped.
func (h *handlers) bulkCreateDefects(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.Defects) == 0 {
		badRequest(c, fmt.Errorf("defects must not be empty"))
		return
	}
	res := h.svc.Defects.BulkCreate(c.Request.Context(), actorFrom(c), req.Defects)
	status := http.StatusCreated
	if res.ErrorCount > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, res)
}

func (h *handlers) listDefects(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	out, err := h.svc.Defects.List(c.Request.Context(), defect.ListFilters{
		InspectionID: c.Query("inspectionId"),
		ProductID:    c.Query("productId"),
		Severity:     c.Query("severity"),
		Status:       c.Query("status"),
		Type:         c.Query("type"),
		Limit:        limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) getDefect(c *gin.Context) {
	d, err := h.svc.Defects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handlers) updateDefect(c *gin.Context) {
	var req defectPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.svc.Defects.Update(c.Request.Context(), actorFrom(c), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handlers) resolveDefect(c *gin.Context) {
	var req resolveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	d, err := h.svc.Defects.Resolve(c.Request.Context(), actorFrom(c), c.Param("id"), req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handlers) deleteDefect(c *gin.Context) {
	if err := h.svc.Defects.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
