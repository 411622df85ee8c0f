package models

import "time"

// Defect severities.
const (
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

// Defect statuses.
const (
	DefectOpen     = "open"
	DefectResolved = "resolved"
)

// Detection sources.
const (
	DetectedManual    = "manual"
	DetectedAutomated = "automated"
)

// DefaultRootCause is stored when no root cause is supplied.
const DefaultRootCause = "unknown"

// Defect is a single quality issue recorded against an inspection.
type Defect struct {
	ID              string     `gorm:"primaryKey;size:40" json:"id"`
	InspectionID    string     `gorm:"size:40;not null;index" json:"inspectionId"`
	ProductID       string     `gorm:"size:40;not null;index" json:"productId"`
	Type            string     `gorm:"size:64;not null;index" json:"type"`
	Severity        string     `gorm:"size:16;not null;index" json:"severity"`
	Description     string     `gorm:"type:text" json:"description"`
	Location        string     `gorm:"size:128" json:"location"`
	RootCause       string     `gorm:"size:64;default:unknown" json:"rootCause"`
	Measurements    JSON       `gorm:"type:text" json:"measurements"`
	ImageURL        string     `gorm:"size:512" json:"imageUrl,omitempty"`
	ImageStorageID  string     `gorm:"size:128" json:"-"`
	Status          string     `gorm:"size:16;not null;default:open;index" json:"status"`
	DetectedBy      string     `gorm:"size:16;default:manual" json:"detectedBy"`
	AIConfidence    float64    `gorm:"default:0" json:"aiConfidence"`
	ReportedBy      string     `gorm:"size:64;not null" json:"reportedBy"`
	ResolvedBy      string     `gorm:"size:64" json:"resolvedBy,omitempty"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	ResolutionNotes string     `gorm:"type:text" json:"resolutionNotes,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	Inspection *Inspection `gorm:"foreignKey:InspectionID" json:"inspection,omitempty"`
	Product    *Product    `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// IsResolved reports whether the defect has been resolved.
func (d *Defect) IsResolved() bool {
	return d.Status == DefectResolved
}
