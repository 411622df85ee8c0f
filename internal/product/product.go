// Package product manages the reference products inspections point at.
package product

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zulandar/qualitygate/internal/activity"
	"github.com/zulandar/qualitygate/internal/apperr"
	"github.com/zulandar/qualitygate/internal/authz"
	"github.com/zulandar/qualitygate/internal/db"
	"github.com/zulandar/qualitygate/internal/models"
	"gorm.io/gorm"
)

// Service creates and looks up products.
type Service struct {
	db       *gorm.DB
	activity activity.Recorder
	logger   *slog.Logger
}

// NewService returns a product Service.
func NewService(gdb *gorm.DB, rec activity.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: gdb, activity: rec, logger: logger}
}

// Create adds a product. SKUs are unique.
func (s *Service) Create(ctx context.Context, actor authz.Actor, name, sku string) (*models.Product, error) {
	name, sku = strings.TrimSpace(name), strings.TrimSpace(sku)
	if name == "" {
		return nil, fmt.Errorf("product: name is required: %w", apperr.ErrInvalidInput)
	}
	if sku == "" {
		return nil, fmt.Errorf("product: sku is required: %w", apperr.ErrInvalidInput)
	}
	p := models.Product{ID: models.NewID(models.PrefixProduct), Name: name, SKU: sku, CreatedBy: actor.ID}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("product: sku %s already exists: %w", sku, apperr.ErrConflict)
		}
		return nil, fmt.Errorf("product: create: %w", err)
	}
	activity.Log(ctx, s.activity, s.logger, actor.ID, activity.ProductCreated,
		fmt.Sprintf("Product %s (%s) created", p.Name, p.SKU), map[string]interface{}{"productId": p.ID})
	return &p, nil
}

// Get retrieves a product by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product: %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("product: get %s: %w", id, err)
	}
	return &p, nil
}

// List returns all products ordered by SKU.
func (s *Service) List(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	if err := s.db.WithContext(ctx).Order("sku ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("product: list: %w", err)
	}
	return out, nil
}

// Exists reports whether a product with id exists, using tx when inside a
// transaction.
func Exists(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("product: check %s: %w", id, err)
	}
	return count > 0, nil
}
