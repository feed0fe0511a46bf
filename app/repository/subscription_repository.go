package repository

import (
	"errors"

	"github.com/FelixHaller/RoomCanvas/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetActiveByUserID returns the user's single active subscription row.
func (r *subscriptionRepository) GetActiveByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Preload("Plan").
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByStripeSubscriptionID resolves an external billing subscription id.
func (r *subscriptionRepository) GetByStripeSubscriptionID(stripeSubID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Preload("Plan").
		Where("stripe_subscription_id = ?", stripeSubID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertActive updates the user's active subscription row in place, or
// creates one if none exists. The single-active-row constraint is enforced
// here rather than with a partial unique index, because cancelled rows are
// kept around and may accumulate per user.
func (r *subscriptionRepository) UpsertActive(sub *models.Subscription) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Subscription
		err := tx.Where("user_id = ? AND status = ?", sub.UserID, models.SubscriptionStatusActive).
			First(&existing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tx.Create(sub).Error
			}
			return err
		}

		existing.PlanID = sub.PlanID
		existing.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		existing.CurrentPeriodEnd = sub.CurrentPeriodEnd
		if sub.StripeSubscriptionID != "" {
			existing.StripeSubscriptionID = sub.StripeSubscriptionID
		}
		if sub.StripeCustomerID != "" {
			existing.StripeCustomerID = sub.StripeCustomerID
		}
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*sub = existing
		return nil
	})
}

// Update persists changes to an existing subscription row.
func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}
