package models

import "time"

// ProcessingTypeRedesign is the processing type recorded for delivered room
// transformations.
const ProcessingTypeRedesign = "redesign"

// ProcessingHistoryEntry is an append-only audit record of a delivered
// transformation. Entries are write-once and read for display only; failing
// to write one never rolls back the consumption it documents.
type ProcessingHistoryEntry struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index" json:"user_id"`
	OriginalImageRef string    `gorm:"type:varchar(500);default:''" json:"original_image_ref"`
	EnhancedImageRef string    `gorm:"type:varchar(500);not null" json:"enhanced_image_ref"`
	ProcessingType   string    `gorm:"type:varchar(50);not null;default:'redesign'" json:"processing_type"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
