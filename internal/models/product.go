package models

import "time"

// Product is the reference entity inspections and defects point at.
type Product struct {
	ID        string    `gorm:"primaryKey;size:40" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	SKU       string    `gorm:"size:64;not null;uniqueIndex" json:"sku"`
	CreatedBy string    `gorm:"size:64" json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}
