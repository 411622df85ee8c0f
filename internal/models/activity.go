package models

import "time"

// Activity is one append-only audit trail entry.
type Activity struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID     string    `gorm:"size:64;not null;index" json:"actorId"`
	Action      string    `gorm:"size:48;not null;index" json:"action"`
	Description string    `gorm:"type:text" json:"description"`
	Metadata    JSON      `gorm:"type:text" json:"metadata"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}
