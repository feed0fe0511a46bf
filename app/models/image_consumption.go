package models

import "time"

// ImageConsumption is the per-user entitlement ledger. AvailableImages is a
// live countdown, not a fixed plan ceiling: a successful transformation
// increments UsedImages AND decrements AvailableImages by one. Plan changes
// and renewals reset both counters; pack purchases only add to
// AvailableImages.
type ImageConsumption struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	AvailableImages int       `gorm:"not null;default:0" json:"available_images"`
	UsedImages      int       `gorm:"not null;default:0" json:"used_images"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Remaining never reports a negative balance.
func (c *ImageConsumption) Remaining() int {
	if c.AvailableImages <= c.UsedImages {
		return 0
	}
	return c.AvailableImages - c.UsedImages
}

// HasRemaining mirrors the denial condition used by the entitlement check.
func (c *ImageConsumption) HasRemaining() bool {
	return c.UsedImages < c.AvailableImages
}
