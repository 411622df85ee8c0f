// Package inspection manages the inspection lifecycle: creation, edits,
// completion with an authoritative defect recount, cascading deletion, and
// image attachments.
package inspection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zulandar/qualitygate/internal/activity"
	"github.com/zulandar/qualitygate/internal/alert"
	"github.com/zulandar/qualitygate/internal/apperr"
	"github.com/zulandar/qualitygate/internal/authz"
	"github.com/zulandar/qualitygate/internal/db"
	"github.com/zulandar/qualitygate/internal/imagestore"
	"github.com/zulandar/qualitygate/internal/metrics"
	"github.com/zulandar/qualitygate/internal/models"
	"github.com/zulandar/qualitygate/internal/product"
	"gorm.io/gorm"
)

// maxCompleteAttempts bounds how often Complete retries after losing a
// version race.
const maxCompleteAttempts = 5

// CreateOpts holds the fields of a new inspection.
type CreateOpts struct {
	ProductID      string    `json:"productId" validate:"required"`
	BatchNumber    string    `json:"batchNumber" validate:"required,max=64"`
	TotalInspected int       `json:"totalInspected" validate:"min=1"`
	Date           time.Time `json:"date"`
	Notes          string    `json:"notes"`
}

// Patch holds optional inspection edits. Status is accepted only so that a
// request setting it can be rejected: Complete is the only status writer.
type Patch struct {
	BatchNumber    *string    `json:"batchNumber" validate:"omitempty,min=1,max=64"`
	TotalInspected *int       `json:"totalInspected" validate:"omitempty,min=1"`
	Date           *time.Time `json:"date"`
	Notes          *string    `json:"notes"`
	Status         *string    `json:"status"`
}

// ListFilters holds optional filters for listing inspections.
type ListFilters struct {
	ProductID   string
	InspectorID string
	Status      string
	BatchNumber string
	Limit       int
}

// CompletionResult is the outcome of Complete.
type CompletionResult struct {
	Inspection  *models.Inspection `json:"inspection"`
	DefectRate  float64            `json:"defectRate"`
	RateAlerted bool               `json:"rateAlerted"`
}

// Manager owns inspection state transitions.
type Manager struct {
	db       *gorm.DB
	alerts   alert.Sink
	activity activity.Recorder
	images   imagestore.Store
	logger   *slog.Logger
}

// Deps are the collaborators of a Manager. Alerts, Activity and Images may
// be nil.
type Deps struct {
	DB       *gorm.DB
	Alerts   alert.Sink
	Activity activity.Recorder
	Images   imagestore.Store
	Logger   *slog.Logger
}

// NewManager returns a Manager wired to deps.
func NewManager(deps Deps) *Manager {
	m := &Manager{
		db:       deps.DB,
		alerts:   deps.Alerts,
		activity: deps.Activity,
		images:   deps.Images,
		logger:   deps.Logger,
	}
	if m.alerts == nil {
		m.alerts = alert.Nop{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Create records a pending inspection of a product batch by actor.
func (m *Manager) Create(ctx context.Context, actor authz.Actor, opts CreateOpts) (*models.Inspection, error) {
	if actor.ID == "" {
		return nil, fmt.Errorf("inspection: inspector is required: %w", apperr.ErrInvalidInput)
	}
	opts.BatchNumber = strings.TrimSpace(opts.BatchNumber)
	if err := apperr.Validate("inspection", opts); err != nil {
		return nil, err
	}
	ok, err := product.Exists(ctx, m.db, opts.ProductID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("inspection: product %s: %w", opts.ProductID, apperr.ErrNotFound)
	}

	date := opts.Date
	if date.IsZero() {
		date = time.Now()
	}
	insp := models.Inspection{
		ID:             models.NewID(models.PrefixInspection),
		ProductID:      opts.ProductID,
		InspectorID:    actor.ID,
		BatchNumber:    opts.BatchNumber,
		Date:           date.UTC(),
		Notes:          opts.Notes,
		TotalInspected: opts.TotalInspected,
		Status:         models.InspectionPending,
	}
	if err := m.db.WithContext(ctx).Create(&insp).Error; err != nil {
		return nil, fmt.Errorf("inspection: create: %w", err)
	}
	activity.Log(ctx, m.activity, m.logger, actor.ID, activity.InspectionCreated,
		fmt.Sprintf("Inspection %s created for batch %s", insp.ID, insp.BatchNumber),
		map[string]interface{}{"inspectionId": insp.ID, "productId": insp.ProductID})
	return m.Get(ctx, insp.ID)
}

// Get retrieves an inspection with its product and ordered images.
func (m *Manager) Get(ctx context.Context, id string) (*models.Inspection, error) {
	var insp models.Inspection
	err := m.db.WithContext(ctx).
		Preload("Product").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).First(&insp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("inspection: %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("inspection: get %s: %w", id, err)
	}
	return &insp, nil
}

// List returns inspections matching the filters, most recent first.
func (m *Manager) List(ctx context.Context, filters ListFilters) ([]models.Inspection, error) {
	q := m.db.WithContext(ctx).Model(&models.Inspection{})
	if filters.ProductID != "" {
		q = q.Where("product_id = ?", filters.ProductID)
	}
	if filters.InspectorID != "" {
		q = q.Where("inspector_id = ?", filters.InspectorID)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.BatchNumber != "" {
		q = q.Where("batch_number = ?", filters.BatchNumber)
	}
	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}

	var out []models.Inspection
	if err := q.Order("date DESC, created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("inspection: list: %w", err)
	}
	return out, nil
}

// Update edits descriptive fields of an inspection. Patches that set the
// status are rejected.
func (m *Manager) Update(ctx context.Context, actor authz.Actor, id string, patch Patch) (*models.Inspection, error) {
	if patch.Status != nil {
		return nil, fmt.Errorf("inspection: status is set by completion only: %w", apperr.ErrInvalidInput)
	}
	if err := apperr.Validate("inspection", patch); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if patch.BatchNumber != nil {
		updates["batch_number"] = strings.TrimSpace(*patch.BatchNumber)
	}
	if patch.TotalInspected != nil {
		updates["total_inspected"] = *patch.TotalInspected
	}
	if patch.Date != nil {
		updates["date"] = patch.Date.UTC()
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if len(updates) == 0 {
		return m.Get(ctx, id)
	}
	updates["version"] = gorm.Expr("version + 1")

	res := m.db.WithContext(ctx).Model(&models.Inspection{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("inspection: update %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("inspection: %s: %w", id, apperr.ErrNotFound)
	}
	activity.Log(ctx, m.activity, m.logger, actor.ID, activity.InspectionUpdated,
		fmt.Sprintf("Inspection %s updated", id), map[string]interface{}{"inspectionId": id})
	return m.Get(ctx, id)
}

// Complete recounts the inspection's defects, stores the count and the
// resulting terminal status, and raises a defect-rate alert when the rate
// exceeds alert.DefectRateThreshold. The write only lands if no other
// counter or status write happened since the recount; otherwise Complete
// retries, and returns a Conflict error once attempts run out.
func (m *Manager) Complete(ctx context.Context, actor authz.Actor, id string) (*CompletionResult, error) {
	for range maxCompleteAttempts {
		var insp models.Inspection
		if err := m.db.WithContext(ctx).Where("id = ?", id).First(&insp).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("inspection: %s: %w", id, apperr.ErrNotFound)
			}
			return nil, fmt.Errorf("inspection: get %s: %w", id, err)
		}

		var count int64
		if err := m.db.WithContext(ctx).Model(&models.Defect{}).Where("inspection_id = ?", id).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("inspection: count defects of %s: %w", id, err)
		}
		status := models.InspectionCompleted
		if count > 0 {
			status = models.InspectionFailed
		}

		res := m.db.WithContext(ctx).Model(&models.Inspection{}).
			Where("id = ? AND version = ?", id, insp.Version).
			Updates(map[string]interface{}{
				"defects_found": count,
				"status":        status,
				"completed_at":  time.Now().UTC(),
				"version":       insp.Version + 1,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("inspection: complete %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			m.logger.Debug("inspection: version moved during completion, retrying", "inspection", id, "version", insp.Version)
			continue
		}
		return m.finishCompletion(ctx, actor, id, int(count), status)
	}
	return nil, fmt.Errorf("inspection: %s changed during completion %d times: %w", id, maxCompleteAttempts, apperr.ErrConflict)
}

func (m *Manager) finishCompletion(ctx context.Context, actor authz.Actor, id string, count int, status string) (*CompletionResult, error) {
	insp, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rate := alert.DefectRate(count, insp.TotalInspected)
	res := &CompletionResult{Inspection: insp, DefectRate: rate}

	metrics.InspectionsCompleted.WithLabelValues(status).Inc()
	metrics.DefectRate.Observe(rate)
	if alert.ShouldAlertRate(rate) {
		m.alerts.DefectRateExceeded(ctx, insp, rate, alert.DefectRateThreshold)
		res.RateAlerted = true
	}
	activity.Log(ctx, m.activity, m.logger, actor.ID, activity.InspectionCompleted,
		fmt.Sprintf("Inspection %s %s with %d defects", id, status, count),
		map[string]interface{}{"inspectionId": id, "status": status, "defectsFound": count, "defectRate": rate})
	return res, nil
}

// Delete removes an inspection with its defects and images in one
// transaction. Only the inspector who created it or a manager/admin may
// delete. Stored image objects no longer referenced by any other inspection
// or defect are removed after the commit; failures there are logged.
func (m *Manager) Delete(ctx context.Context, actor authz.Actor, id string) error {
	insp, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanDelete(insp.InspectorID, actor) {
		return fmt.Errorf("inspection: %s may not delete %s: %w", actor.ID, id, apperr.ErrForbidden)
	}

	var candidates []string
	for _, img := range insp.Images {
		candidates = append(candidates, img.StorageID)
	}
	var (
		objects []string
		removed int64
	)
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var defectObjects []string
		if err := tx.Model(&models.Defect{}).
			Where("inspection_id = ? AND image_storage_id <> ''", id).
			Pluck("image_storage_id", &defectObjects).Error; err != nil {
			return fmt.Errorf("list defect images: %w", err)
		}
		res := tx.Where("inspection_id = ?", id).Delete(&models.Defect{})
		if res.Error != nil {
			return fmt.Errorf("delete defects: %w", res.Error)
		}
		removed = res.RowsAffected
		if err := tx.Where("inspection_id = ?", id).Delete(&models.InspectionImage{}).Error; err != nil {
			return fmt.Errorf("delete images: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.Inspection{}).Error; err != nil {
			return fmt.Errorf("delete inspection: %w", err)
		}
		candidates = append(candidates, defectObjects...)
		seen := make(map[string]bool, len(candidates))
		for _, obj := range candidates {
			if obj == "" || seen[obj] {
				continue
			}
			seen[obj] = true
			shared, err := db.ObjectReferenced(tx, obj)
			if err != nil {
				return err
			}
			if !shared {
				objects = append(objects, obj)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("inspection: delete %s: %w", id, err)
	}

	m.removeObjects(ctx, id, objects)
	activity.Log(ctx, m.activity, m.logger, actor.ID, activity.InspectionDeleted,
		fmt.Sprintf("Inspection %s deleted with %d defects", id, removed),
		map[string]interface{}{"inspectionId": id, "defectsDeleted": removed})
	return nil
}

func (m *Manager) removeObjects(ctx context.Context, id string, objects []string) {
	if m.images == nil {
		return
	}
	for _, obj := range objects {
		if obj == "" {
			continue
		}
		if err := m.images.Delete(ctx, obj); err != nil {
			metrics.ImageStoreFailures.WithLabelValues("delete").Inc()
			m.logger.Warn("inspection: delete stored image", "inspection", id, "image", obj, "error", err)
		}
	}
}
