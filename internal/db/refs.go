package db

import (
	"fmt"

	"github.com/zulandar/qualitygate/internal/models"
	"gorm.io/gorm"
)

// ObjectReferenced reports whether any inspection image or defect still
// points at the stored object id. Objects are only removed from the image
// store once nothing references them.
func ObjectReferenced(tx *gorm.DB, storageID string) (bool, error) {
	var n int64
	if err := tx.Model(&models.InspectionImage{}).Where("storage_id = ?", storageID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("db: image references to %s: %w", storageID, err)
	}
	if n > 0 {
		return true, nil
	}
	if err := tx.Model(&models.Defect{}).Where("image_storage_id = ?", storageID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("db: defect references to %s: %w", storageID, err)
	}
	return n > 0, nil
}
