package defect

import (
	"context"
	"fmt"

	"github.com/zulandar/qualitygate/internal/activity"
	"github.com/zulandar/qualitygate/internal/authz"
	"github.com/zulandar/qualitygate/internal/models"
)

// ItemError reports why the item at Index was skipped.
type ItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BulkResult summarises a BulkCreate call. A non-zero ErrorCount is a
// partial failure, not an error.
type BulkResult struct {
	CreatedCount int             `json:"createdCount"`
	ErrorCount   int             `json:"errorCount"`
	Errors       []ItemError     `json:"errors"`
	Data         []models.Defect `json:"data"`
}

// BulkCreate creates each item independently with the same side effects as
// Create. Items that fail are reported in the result and skipped.
func (r *Registry) BulkCreate(ctx context.Context, actor authz.Actor, items []CreateOpts) *BulkResult {
	res := &BulkResult{Errors: []ItemError{}, Data: []models.Defect{}}
	for i, item := range items {
		d, err := r.create(ctx, actor, item)
		if err != nil {
			r.logger.Debug("defect: bulk item skipped", "index", i, "error", err)
			res.Errors = append(res.Errors, ItemError{Index: i, Error: err.Error()})
			continue
		}
		res.Data = append(res.Data, *d)
	}
	res.CreatedCount = len(res.Data)
	res.ErrorCount = len(res.Errors)

	if res.CreatedCount > 0 {
		ids := make([]string, 0, len(res.Data))
		for _, d := range res.Data {
			ids = append(ids, d.ID)
		}
		activity.Log(ctx, r.activity, r.logger, actor.ID, activity.DefectsBulkCreated,
			fmt.Sprintf("Bulk import created %d defects (%d skipped)", res.CreatedCount, res.ErrorCount),
			map[string]interface{}{"defectIds": ids, "errorCount": res.ErrorCount})
	}
	return res
}
