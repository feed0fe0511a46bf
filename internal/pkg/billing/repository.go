package billing

import (
	"time"

	"github.com/FelixHaller/RoomCanvas/app/models"
	"github.com/FelixHaller/RoomCanvas/app/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetPlanByID(id uint) (*models.Plan, error)
	GetPlanByStripePriceID(priceID string) (*models.Plan, error)
	GetSubscriptionByStripeID(stripeSubID string) (*models.Subscription, error)
	GetActiveSubscriptionByUserID(userID uint) (*models.Subscription, error)
	UpdateSubscription(sub *models.Subscription) error
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db            *gorm.DB
	plans         repository.PlanRepository
	subscriptions repository.SubscriptionRepository
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{
		db:            db,
		plans:         repository.NewPlanRepository(db),
		subscriptions: repository.NewSubscriptionRepository(db),
	}
}

func (r *gormRepository) GetPlanByID(id uint) (*models.Plan, error) {
	return r.plans.GetByID(id)
}

func (r *gormRepository) GetPlanByStripePriceID(priceID string) (*models.Plan, error) {
	return r.plans.GetByStripePriceID(priceID)
}

func (r *gormRepository) GetSubscriptionByStripeID(stripeSubID string) (*models.Subscription, error) {
	return r.subscriptions.GetByStripeSubscriptionID(stripeSubID)
}

func (r *gormRepository) GetActiveSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	return r.subscriptions.GetActiveByUserID(userID)
}

func (r *gormRepository) UpdateSubscription(sub *models.Subscription) error {
	return r.subscriptions.Update(sub)
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
