package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/qualitygate/internal/imagestore"
	"github.com/zulandar/qualitygate/internal/inspection"
)

// Multipart fields of an image upload. flagged and confidence repeat once
// per file, in file order, and may be omitted.
const (
	imagesField     = "images"
	flaggedField    = "flagged"
	confidenceField = "confidence"
)

func (h *handlers) createInspection(c *gin.Context) {
	var opts inspection.CreateOpts
	if err := c.ShouldBindJSON(&opts); err != nil {
		badRequest(c, err)
		return
	}
	insp, err := h.svc.Inspections.Create(c.Request.Context(), actorFrom(c), opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, insp)
}

func (h *handlers) listInspections(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	out, err := h.svc.Inspections.List(c.Request.Context(), inspection.ListFilters{
		ProductID:   c.Query("productId"),
		InspectorID: c.Query("inspectorId"),
		Status:      c.Query("status"),
		BatchNumber: c.Query("batchNumber"),
		Limit:       limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) getInspection(c *gin.Context) {
	insp, err := h.svc.Inspections.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, insp)
}

func (h *handlers) updateInspection(c *gin.Context) {
	var patch inspection.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	insp, err := h.svc.Inspections.Update(c.Request.Context(), actorFrom(c), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, insp)
}

func (h *handlers) completeInspection(c *gin.Context) {
	res, err := h.svc.Inspections.Complete(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) deleteInspection(c *gin.Context) {
	if err := h.svc.Inspections.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) uploadImages(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, fmt.Errorf("expected multipart form: %w", err))
		return
	}
	headers := form.File[imagesField]
	if len(headers) == 0 {
		badRequest(c, fmt.Errorf("no files in %q field", imagesField))
		return
	}

	analysis, err := uploadAnalysis(form.Value, len(headers))
	if err != nil {
		badRequest(c, err)
		return
	}

	files := make([]imagestore.File, 0, len(headers))
	kept := make([]inspection.ImageAnalysis, 0, len(headers))
	for i, fh := range headers {
		f, err := readUpload(fh)
		if err != nil {
			h.logger.Warn("api: unreadable upload skipped", "file", fh.Filename, "error", err)
			continue
		}
		files = append(files, f)
		kept = append(kept, analysis[i])
	}
	insp, err := h.svc.Inspections.UploadImages(c.Request.Context(), actorFrom(c), c.Param("id"), files, kept...)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, insp)
}

// uploadAnalysis reads the per-file flagged/confidence values. Missing
// entries default to unflagged with zero confidence.
func uploadAnalysis(values map[string][]string, n int) ([]inspection.ImageAnalysis, error) {
	flagged, confidence := values[flaggedField], values[confidenceField]
	if len(flagged) > n || len(confidence) > n {
		return nil, fmt.Errorf("more %s/%s values than files", flaggedField, confidenceField)
	}
	out := make([]inspection.ImageAnalysis, n)
	for i, v := range flagged {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %q is not a boolean", flaggedField, i, v)
		}
		out[i].Flagged = b
	}
	for i, v := range confidence {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %q is not a number", confidenceField, i, v)
		}
		out[i].Confidence = f
	}
	return out, nil
}

func readUpload(fh *multipart.FileHeader) (imagestore.File, error) {
	src, err := fh.Open()
	if err != nil {
		return imagestore.File{}, err
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return imagestore.File{}, err
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return imagestore.File{Name: fh.Filename, ContentType: ct, Data: data}, nil
}
