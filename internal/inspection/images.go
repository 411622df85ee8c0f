package inspection

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/qualitygate/internal/activity"
	"github.com/zulandar/qualitygate/internal/apperr"
	"github.com/zulandar/qualitygate/internal/authz"
	"github.com/zulandar/qualitygate/internal/imagestore"
	"github.com/zulandar/qualitygate/internal/metrics"
	"github.com/zulandar/qualitygate/internal/models"
	"gorm.io/gorm"
)

// ImageAnalysis is the automated-analysis verdict attached to one uploaded
// image.
type ImageAnalysis struct {
	Flagged    bool    `json:"flagged"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// UploadImages stores files and appends them to the inspection's image list
// in order. analysis[i], when present, applies to files[i]. Files the image
// store rejects are skipped.
func (m *Manager) UploadImages(ctx context.Context, actor authz.Actor, id string, files []imagestore.File, analysis ...ImageAnalysis) (*models.Inspection, error) {
	if m.images == nil {
		return nil, errors.New("inspection: no image store configured")
	}
	if len(analysis) > len(files) {
		return nil, fmt.Errorf("inspection: %d analysis entries for %d files: %w", len(analysis), len(files), apperr.ErrInvalidInput)
	}
	for i := range analysis {
		if err := apperr.Validate("inspection", analysis[i]); err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
	}
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}

	var stored []models.InspectionImage
	for i, f := range files {
		s, err := m.images.Put(ctx, f)
		if err != nil {
			metrics.ImageStoreFailures.WithLabelValues("put").Inc()
			m.logger.Warn("inspection: skipping image", "inspection", id, "file", f.Name, "error", err)
			continue
		}
		img := models.InspectionImage{InspectionID: id, URL: s.URL, StorageID: s.ID}
		if i < len(analysis) {
			img.Flagged, img.Confidence = analysis[i].Flagged, analysis[i].Confidence
		}
		stored = append(stored, img)
	}
	if len(stored) == 0 {
		return m.Get(ctx, id)
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var next int
		if err := tx.Model(&models.InspectionImage{}).
			Where("inspection_id = ?", id).
			Select("COALESCE(MAX(position) + 1, 0)").
			Scan(&next).Error; err != nil {
			return fmt.Errorf("next image position: %w", err)
		}
		for i := range stored {
			stored[i].Position = next + i
		}
		return tx.Create(&stored).Error
	})
	if err != nil {
		// The rows did not land; drop the objects so they are not orphaned.
		ids := make([]string, 0, len(stored))
		for _, img := range stored {
			ids = append(ids, img.StorageID)
		}
		m.removeObjects(ctx, id, ids)
		return nil, fmt.Errorf("inspection: attach images to %s: %w", id, err)
	}

	activity.Log(ctx, m.activity, m.logger, actor.ID, activity.InspectionImagesUploaded,
		fmt.Sprintf("%d of %d images attached to inspection %s", len(stored), len(files), id),
		map[string]interface{}{"inspectionId": id, "stored": len(stored), "skipped": len(files) - len(stored)})
	return m.Get(ctx, id)
}
