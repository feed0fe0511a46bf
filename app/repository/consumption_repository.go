package repository

import (
	"github.com/FelixHaller/RoomCanvas/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// consumptionRepository implements the ConsumptionRepository interface
type consumptionRepository struct {
	db *gorm.DB
}

// NewConsumptionRepository creates a new ledger repository instance
func NewConsumptionRepository(db *gorm.DB) ConsumptionRepository {
	return &consumptionRepository{db: db}
}

// GetByUserID retrieves the ledger row for a user
func (r *consumptionRepository) GetByUserID(userID uint) (*models.ImageConsumption, error) {
	var ledger models.ImageConsumption
	err := r.db.Where("user_id = ?", userID).First(&ledger).Error
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

// CreateIfNotExists inserts the ledger row unless the user already has one.
// The unique index on user_id plus DO NOTHING makes concurrent creators
// converge on a single row; the stored row is re-read and returned.
func (r *consumptionRepository) CreateIfNotExists(ledger *models.ImageConsumption) (*models.ImageConsumption, error) {
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(ledger).Error; err != nil {
		return nil, err
	}

	var stored models.ImageConsumption
	if err := r.db.Where("user_id = ?", ledger.UserID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// ConsumeOne performs the consumption commit as a single conditional update:
//
//	UPDATE image_consumptions
//	SET used_images = used_images + 1, available_images = available_images - 1
//	WHERE user_id = ? AND used_images < available_images
//
// Zero affected rows means the balance was already exhausted, so concurrent
// commits can never push used_images past available_images.
func (r *consumptionRepository) ConsumeOne(userID uint) (bool, error) {
	res := r.db.Model(&models.ImageConsumption{}).
		Where("user_id = ? AND used_images < available_images", userID).
		Updates(map[string]interface{}{
			"used_images":      gorm.Expr("used_images + 1"),
			"available_images": gorm.Expr("available_images - 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Reset rebases the ledger to a plan baseline, discarding prior usage.
func (r *consumptionRepository) Reset(userID uint, availableImages int) error {
	return r.db.Model(&models.ImageConsumption{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"available_images": availableImages,
			"used_images":      0,
		}).Error
}

// AddAvailable grants additional capacity without resetting usage.
func (r *consumptionRepository) AddAvailable(userID uint, packSize int) error {
	return r.db.Model(&models.ImageConsumption{}).
		Where("user_id = ?", userID).
		Update("available_images", gorm.Expr("available_images + ?", packSize)).Error
}
