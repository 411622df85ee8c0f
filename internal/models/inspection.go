package models

import "time"

// Inspection status values. Pending is the only non-terminal status.
const (
	InspectionPending   = "pending"
	InspectionCompleted = "completed"
	InspectionFailed    = "failed"
)

// Inspection is a quality check performed against a production batch.
type Inspection struct {
	ID             string     `gorm:"primaryKey;size:40" json:"id"`
	ProductID      string     `gorm:"size:40;not null;index" json:"productId"`
	InspectorID    string     `gorm:"size:64;not null;index" json:"inspectorId"`
	BatchNumber    string     `gorm:"size:64;not null;index" json:"batchNumber"`
	Date           time.Time  `json:"date"`
	Notes          string     `gorm:"type:text" json:"notes"`
	TotalInspected int        `gorm:"not null" json:"totalInspected"`
	DefectsFound   int        `gorm:"not null;default:0" json:"defectsFound"`
	Status         string     `gorm:"size:16;not null;default:pending;index" json:"status"`
	Version        int        `gorm:"not null;default:0" json:"version"`
	CompletedAt    *time.Time `gorm:"index" json:"completedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	Product *Product          `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Images  []InspectionImage `gorm:"foreignKey:InspectionID" json:"images"`
}

// IsTerminal reports whether the inspection has been completed or failed.
func (i *Inspection) IsTerminal() bool {
	return i.Status == InspectionCompleted || i.Status == InspectionFailed
}

// InspectionImage is one entry of an inspection's ordered image list.
type InspectionImage struct {
	ID           uint    `gorm:"primaryKey;autoIncrement" json:"-"`
	InspectionID string  `gorm:"size:40;not null;index" json:"-"`
	Position     int     `gorm:"not null" json:"-"`
	URL          string  `gorm:"size:512;not null" json:"url"`
	StorageID    string  `gorm:"size:128;not null" json:"storageId"`
	Flagged      bool    `gorm:"default:false" json:"flagged"`
	Confidence   float64 `gorm:"default:0" json:"confidence"`
}
