package models

import "time"

// Canonical plan names seeded by migrations. Plans are read-only in normal
// operation; administrative changes go through migrations.
const (
	PlanFree     = "Free"
	PlanBasic    = "Basic"
	PlanBusiness = "Business"
)

// Plan defines a subscription tier and the number of image transformations
// included per billing period.
type Plan struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Price          float64   `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	IncludedImages int       `gorm:"not null;default:0" json:"included_images"`
	Description    string    `gorm:"type:text" json:"description"`
	StripePriceID  string    `gorm:"type:varchar(191);default:'';index" json:"-"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFree reports whether this is the zero-price tier.
func (p *Plan) IsFree() bool {
	return p.Price == 0
}
