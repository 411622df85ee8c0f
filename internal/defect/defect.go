// Package defect provides the defect registry: creation, edits, resolution,
// deletion and bulk import of defects, plus the defect counter kept on the
// parent inspection.
package defect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
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

// CreateOpts holds the fields of a new defect.
type CreateOpts struct {
	InspectionID   string                 `json:"inspectionId" validate:"required"`
	ProductID      string                 `json:"productId" validate:"required"`
	Type           string                 `json:"type" validate:"required,max=64"`
	Severity       string                 `json:"severity" validate:"required,oneof=minor major critical"`
	Description    string                 `json:"description"`
	Location       string                 `json:"location" validate:"max=128"`
	RootCause      string                 `json:"rootCause" validate:"max=64"`
	Measurements   map[string]interface{} `json:"measurements"`
	ImageURL       string                 `json:"imageUrl" validate:"max=512"`
	ImageStorageID string                 `json:"imageStorageId" validate:"max=128"`
	DetectedBy     string                 `json:"detectedBy" validate:"omitempty,oneof=manual automated"`
	AIConfidence   float64                `json:"aiConfidence" validate:"gte=0,lte=1"`
}

// Patch holds optional defect edits. Nil fields are left unchanged.
//
// MeasurementsRaw carries measurements still in their encoded form; it is
// decoded before the write and dropped if it is not a JSON object.
type Patch struct {
	Type            *string                `json:"type" validate:"omitempty,min=1,max=64"`
	Severity        *string                `json:"severity" validate:"omitempty,oneof=minor major critical"`
	Description     *string                `json:"description"`
	Location        *string                `json:"location" validate:"omitempty,max=128"`
	RootCause       *string                `json:"rootCause" validate:"omitempty,max=64"`
	Measurements    map[string]interface{} `json:"measurements"`
	MeasurementsRaw *string                `json:"-"`
	Status          *string                `json:"status" validate:"omitempty,oneof=open resolved"`
	ResolutionNotes *string                `json:"resolutionNotes"`
	AIConfidence    *float64               `json:"aiConfidence" validate:"omitempty,gte=0,lte=1"`
}

// ListFilters holds optional filters for listing defects.
type ListFilters struct {
	InspectionID string
	ProductID    string
	Severity     string
	Status       string
	Type         string
	Limit        int
}

// Registry owns defect records and the defect counter on their inspections.
type Registry struct {
	db       *gorm.DB
	alerts   alert.Sink
	activity activity.Recorder
	images   imagestore.Store
	logger   *slog.Logger
	now      func() time.Time
}

// Deps are the collaborators of a Registry. Alerts, Activity and Images may
// be nil.
type Deps struct {
	DB       *gorm.DB
	Alerts   alert.Sink
	Activity activity.Recorder
	Images   imagestore.Store
	Logger   *slog.Logger
}

// NewRegistry returns a Registry wired to deps.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{
		db:       deps.DB,
		alerts:   deps.Alerts,
		activity: deps.Activity,
		images:   deps.Images,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if r.alerts == nil {
		r.alerts = alert.Nop{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Create records a defect against an existing inspection and product and
// increments the inspection's defect counter. A critical defect raises an
// alert before Create returns.
func (r *Registry) Create(ctx context.Context, actor authz.Actor, opts CreateOpts) (*models.Defect, error) {
	d, err := r.create(ctx, actor, opts)
	if err != nil {
		return nil, err
	}
	activity.Log(ctx, r.activity, r.logger, actor.ID, activity.DefectCreated,
		fmt.Sprintf("Defect %s (%s, %s) recorded on inspection %s", d.ID, d.Type, d.Severity, d.InspectionID),
		map[string]interface{}{"defectId": d.ID, "inspectionId": d.InspectionID, "severity": d.Severity})
	return d, nil
}

// create persists the defect and raises its alert without recording activity,
// so BulkCreate can summarise a batch in a single entry.
func (r *Registry) create(ctx context.Context, actor authz.Actor, opts CreateOpts) (*models.Defect, error) {
	if actor.ID == "" {
		return nil, fmt.Errorf("defect: reporter is required: %w", apperr.ErrInvalidInput)
	}
	if err := apperr.Validate("defect", opts); err != nil {
		return nil, err
	}
	meta, err := models.MarshalJSONValue(opts.Measurements)
	if err != nil {
		return nil, fmt.Errorf("defect: measurements: %v: %w", err, apperr.ErrInvalidInput)
	}

	d := models.Defect{
		ID:             models.NewID(models.PrefixDefect),
		InspectionID:   opts.InspectionID,
		ProductID:      opts.ProductID,
		Type:           opts.Type,
		Severity:       opts.Severity,
		Description:    opts.Description,
		Location:       opts.Location,
		RootCause:      opts.RootCause,
		Measurements:   meta,
		ImageURL:       opts.ImageURL,
		ImageStorageID: opts.ImageStorageID,
		Status:         models.DefectOpen,
		DetectedBy:     opts.DetectedBy,
		AIConfidence:   opts.AIConfidence,
		ReportedBy:     actor.ID,
	}
	if d.RootCause == "" {
		d.RootCause = models.DefaultRootCause
	}
	if d.DetectedBy == "" {
		d.DetectedBy = models.DetectedManual
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Inspection{}).Where("id = ?", opts.InspectionID).Count(&count).Error; err != nil {
			return fmt.Errorf("defect: check inspection %s: %w", opts.InspectionID, err)
		}
		if count == 0 {
			return fmt.Errorf("defect: inspection %s: %w", opts.InspectionID, apperr.ErrNotFound)
		}
		ok, err := product.Exists(ctx, tx, opts.ProductID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("defect: product %s: %w", opts.ProductID, apperr.ErrNotFound)
		}
		if err := tx.Create(&d).Error; err != nil {
			return fmt.Errorf("defect: create: %w", err)
		}
		return adjustCount(tx, opts.InspectionID, 1)
	})
	if err != nil {
		return nil, err
	}
	metrics.DefectsCreated.WithLabelValues(d.Severity).Inc()

	created, err := r.Get(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	if alert.ShouldAlertCritical(created.Severity) {
		r.alerts.CriticalDefect(ctx, created, created.Inspection)
	}
	return created, nil
}

// adjustCount moves the inspection's defect counter by delta in a single
// UPDATE, never below zero, and bumps its version.
func adjustCount(tx *gorm.DB, inspectionID string, delta int) error {
	expr := gorm.Expr("defects_found + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN defects_found + ? < 0 THEN 0 ELSE defects_found + ? END", delta, delta)
	}
	err := tx.Model(&models.Inspection{}).Where("id = ?", inspectionID).Updates(map[string]interface{}{
		"defects_found": expr,
		"version":       gorm.Expr("version + 1"),
	}).Error
	if err != nil {
		return fmt.Errorf("defect: adjust count on %s: %w", inspectionID, err)
	}
	return nil
}

// Get retrieves a defect by ID with its inspection and product.
func (r *Registry) Get(ctx context.Context, id string) (*models.Defect, error) {
	var d models.Defect
	err := r.db.WithContext(ctx).Preload("Inspection").Preload("Product").Where("id = ?", id).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("defect: %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("defect: get %s: %w", id, err)
	}
	return &d, nil
}

// List returns defects matching the filters, newest first.
func (r *Registry) List(ctx context.Context, filters ListFilters) ([]models.Defect, error) {
	q := r.db.WithContext(ctx).Model(&models.Defect{})
	if filters.InspectionID != "" {
		q = q.Where("inspection_id = ?", filters.InspectionID)
	}
	if filters.ProductID != "" {
		q = q.Where("product_id = ?", filters.ProductID)
	}
	if filters.Severity != "" {
		q = q.Where("severity = ?", filters.Severity)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Type != "" {
		q = q.Where("type = ?", filters.Type)
	}
	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}

	var out []models.Defect
	if err := q.Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("defect: list: %w", err)
	}
	return out, nil
}

// Update applies patch to a defect. Setting status to resolved on an open
// defect also stamps the resolver and resolution time in the same write;
// repeating it on a resolved defect leaves both untouched. A resolved
// defect cannot be reopened.
func (r *Registry) Update(ctx context.Context, actor authz.Actor, id string, patch Patch) (*models.Defect, error) {
	if err := apperr.Validate("defect", patch); err != nil {
		return nil, err
	}
	if patch.MeasurementsRaw != nil {
		patch.Measurements = r.decodeMeasurements(id, *patch.MeasurementsRaw)
	}

	var resolved bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.Defect
		if err := tx.Where("id = ?", id).First(&cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("defect: %s: %w", id, apperr.ErrNotFound)
			}
			return fmt.Errorf("defect: get %s for update: %w", id, err)
		}

		updates, err := patchUpdates(patch)
		if err != nil {
			return err
		}
		if patch.Status != nil {
			switch {
			case *patch.Status == models.DefectResolved && !cur.IsResolved():
				updates["resolved_at"] = r.now()
				updates["resolved_by"] = actor.ID
				resolved = true
			case *patch.Status == models.DefectOpen && cur.IsResolved():
				return fmt.Errorf("defect: %s is resolved and cannot be reopened: %w", id, apperr.ErrInvalidInput)
			}
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Defect{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("defect: update %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	action, desc := activity.DefectUpdated, fmt.Sprintf("Defect %s updated", id)
	if resolved {
		action, desc = activity.DefectResolved, fmt.Sprintf("Defect %s resolved", id)
	}
	activity.Log(ctx, r.activity, r.logger, actor.ID, action, desc, map[string]interface{}{"defectId": id})
	return r.Get(ctx, id)
}

func patchUpdates(p Patch) (map[string]interface{}, error) {
	updates := map[string]interface{}{}
	if p.Type != nil {
		updates["type"] = *p.Type
	}
	if p.Severity != nil {
		updates["severity"] = *p.Severity
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Location != nil {
		updates["location"] = *p.Location
	}
	if p.RootCause != nil {
		rc := *p.RootCause
		if rc == "" {
			rc = models.DefaultRootCause
		}
		updates["root_cause"] = rc
	}
	if p.Measurements != nil {
		b, err := models.MarshalJSONValue(p.Measurements)
		if err != nil {
			return nil, fmt.Errorf("defect: measurements: %v: %w", err, apperr.ErrInvalidInput)
		}
		updates["measurements"] = b
	}
	if p.Status != nil {
		updates["status"] = *p.Status
	}
	if p.ResolutionNotes != nil {
		updates["resolution_notes"] = *p.ResolutionNotes
	}
	if p.AIConfidence != nil {
		updates["ai_confidence"] = *p.AIConfidence
	}
	return updates, nil
}

// decodeMeasurements parses raw as a JSON object. Malformed input yields nil
// so the rest of the patch still applies.
func (r *Registry) decodeMeasurements(id, raw string) map[string]interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		r.logger.Warn("defect: dropping malformed measurements", "defect", id, "error", err)
		return nil
	}
	return m
}

// Resolve marks a defect resolved by actor with optional notes. Resolving an
// already resolved defect returns it unchanged.
func (r *Registry) Resolve(ctx context.Context, actor authz.Actor, id, notes string) (*models.Defect, error) {
	d, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.IsResolved() {
		return d, nil
	}

	updates := map[string]interface{}{
		"status":      models.DefectResolved,
		"resolved_at": r.now(),
		"resolved_by": actor.ID,
	}
	if notes != "" {
		updates["resolution_notes"] = notes
	}
	res := r.db.WithContext(ctx).Model(&models.Defect{}).
		Where("id = ? AND status = ?", id, models.DefectOpen).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("defect: resolve %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		activity.Log(ctx, r.activity, r.logger, actor.ID, activity.DefectResolved,
			fmt.Sprintf("Defect %s resolved", id), map[string]interface{}{"defectId": id, "notes": notes})
	}
	return r.Get(ctx, id)
}

// Delete removes a defect and decrements its inspection's counter. Only the
// reporter or a manager/admin may delete. The stored image is removed after
// the delete commits unless another inspection image or defect still
// references it; failures there are logged.
func (r *Registry) Delete(ctx context.Context, actor authz.Actor, id string) error {
	var d models.Defect
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("defect: %s: %w", id, apperr.ErrNotFound)
		}
		return fmt.Errorf("defect: get %s: %w", id, err)
	}
	if !authz.CanDelete(d.ReportedBy, actor) {
		return fmt.Errorf("defect: %s may not delete %s: %w", actor.ID, id, apperr.ErrForbidden)
	}

	var dropImage bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Defect{})
		if res.Error != nil {
			return fmt.Errorf("defect: delete %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("defect: %s: %w", id, apperr.ErrNotFound)
		}
		if d.ImageStorageID != "" {
			shared, err := db.ObjectReferenced(tx, d.ImageStorageID)
			if err != nil {
				return err
			}
			dropImage = !shared
		}
		return adjustCount(tx, d.InspectionID, -1)
	})
	if err != nil {
		return err
	}

	if dropImage && r.images != nil {
		if err := r.images.Delete(ctx, d.ImageStorageID); err != nil {
			metrics.ImageStoreFailures.WithLabelValues("delete").Inc()
			r.logger.Warn("defect: delete stored image", "defect", id, "image", d.ImageStorageID, "error", err)
		}
	}
	activity.Log(ctx, r.activity, r.logger, actor.ID, activity.DefectDeleted,
		fmt.Sprintf("Defect %s deleted from inspection %s", id, d.InspectionID),
		map[string]interface{}{"defectId": id, "inspectionId": d.InspectionID})
	return nil
}
