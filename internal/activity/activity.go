// Package activity records the append-only audit trail. Recording is
// best-effort: callers log failures and carry on.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zulandar/qualitygate/internal/metrics"
	"github.com/zulandar/qualitygate/internal/models"
	"gorm.io/gorm"
)

// Action is the closed set of audit tags.
type Action string

const (
	InspectionCreated        Action = "inspection_created"
	InspectionUpdated        Action = "inspection_updated"
	InspectionCompleted      Action = "inspection_completed"
	InspectionDeleted        Action = "inspection_deleted"
	InspectionImagesUploaded Action = "inspection_images_uploaded"
	DefectCreated            Action = "defect_created"
	DefectUpdated            Action = "defect_updated"
	DefectResolved           Action = "defect_resolved"
	DefectDeleted            Action = "defect_deleted"
	DefectsBulkCreated       Action = "defects_bulk_created"
	ProductCreated           Action = "product_created"
)

var knownActions = map[Action]bool{
	InspectionCreated: true, InspectionUpdated: true, InspectionCompleted: true,
	InspectionDeleted: true, InspectionImagesUploaded: true, DefectCreated: true,
	DefectUpdated: true, DefectResolved: true, DefectDeleted: true,
	DefectsBulkCreated: true, ProductCreated: true,
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool { return knownActions[a] }

// Recorder appends entries to the audit trail.
type Recorder interface {
	Record(ctx context.Context, actorID string, action Action, description string, metadata map[string]interface{}) (*models.Activity, error)
}

// Store is the GORM-backed Recorder.
type Store struct {
	db *gorm.DB
}

// NewStore returns a Store writing to db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Record inserts one activity row.
func (s *Store) Record(ctx context.Context, actorID string, action Action, description string, metadata map[string]interface{}) (*models.Activity, error) {
	if actorID == "" {
		return nil, fmt.Errorf("activity: actor is required")
	}
	if !action.Valid() {
		return nil, fmt.Errorf("activity: unknown action %q", action)
	}
	meta, err := models.MarshalJSONValue(metadata)
	if err != nil {
		return nil, fmt.Errorf("activity: %w", err)
	}
	a := models.Activity{
		ActorID:     actorID,
		Action:      string(action),
		Description: description,
		Metadata:    meta,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		return nil, fmt.Errorf("activity: record %s: %w", action, err)
	}
	return &a, nil
}

// ListFilters holds optional filters for listing activities.
type ListFilters struct {
	ActorID string
	Action  string
	Limit   int
}

// List returns activities newest first.
func (s *Store) List(ctx context.Context, f ListFilters) ([]models.Activity, error) {
	q := s.db.WithContext(ctx).Model(&models.Activity{})
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.Activity
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("activity: list: %w", err)
	}
	return out, nil
}

// Since returns up to limit activities with an ID greater than afterID,
// oldest first.
func (s *Store) Since(ctx context.Context, afterID uint, limit int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.Activity
	if err := s.db.WithContext(ctx).Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("activity: since %d: %w", afterID, err)
	}
	return out, nil
}

// LatestID returns the highest activity ID, or 0 when the trail is empty.
func (s *Store) LatestID(ctx context.Context) (uint, error) {
	var id uint
	if err := s.db.WithContext(ctx).Model(&models.Activity{}).Select("COALESCE(MAX(id), 0)").Scan(&id).Error; err != nil {
		return 0, fmt.Errorf("activity: latest id: %w", err)
	}
	return id, nil
}

// Log records an activity and swallows any failure after logging it.
func Log(ctx context.Context, rec Recorder, logger *slog.Logger, actorID string, action Action, description string, metadata map[string]interface{}) {
	if rec == nil {
		return
	}
	if _, err := rec.Record(ctx, actorID, action, description, metadata); err != nil {
		metrics.ActivityFailures.Inc()
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("activity: record failed", "action", string(action), "actor", actorID, "err", err)
	}
}
