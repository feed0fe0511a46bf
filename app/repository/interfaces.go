package repository

import (
	"github.com/FelixHaller/RoomCanvas/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// PlanRepository defines the interface for plan catalog reads. Plans are
// seeded by migrations and treated as read-only at runtime.
type PlanRepository interface {
	GetByID(id uint) (*models.Plan, error)
	GetByName(name string) (*models.Plan, error)
	GetByStripePriceID(priceID string) (*models.Plan, error)
	GetAll() ([]models.Plan, error)
}

// SubscriptionRepository defines the interface for subscription records.
type SubscriptionRepository interface {
	GetActiveByUserID(userID uint) (*models.Subscription, error)
	GetByStripeSubscriptionID(stripeSubID string) (*models.Subscription, error)
	UpsertActive(sub *models.Subscription) error
	Update(sub *models.Subscription) error
}

// ConsumptionRepository defines the interface for the entitlement ledger.
type ConsumptionRepository interface {
	GetByUserID(userID uint) (*models.ImageConsumption, error)
	// CreateIfNotExists inserts a ledger row unless one already exists for the
	// user; concurrent creators converge on a single row. The returned record
	// is the stored row either way.
	CreateIfNotExists(ledger *models.ImageConsumption) (*models.ImageConsumption, error)
	// ConsumeOne atomically increments used_images and decrements
	// available_images, but only while used_images < available_images.
	// It reports whether a unit was consumed.
	ConsumeOne(userID uint) (bool, error)
	// Reset sets the ledger to a plan baseline, discarding prior usage.
	Reset(userID uint, availableImages int) error
	// AddAvailable adds packSize to available_images without touching
	// used_images.
	AddAvailable(userID uint, packSize int) error
}

// HistoryRepository defines the interface for the append-only processing log.
type HistoryRepository interface {
	Create(entry *models.ProcessingHistoryEntry) error
	GetByUserID(userID uint, offset, limit int) ([]models.ProcessingHistoryEntry, error)
	CountByUserID(userID uint) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Plan         PlanRepository
	Subscription SubscriptionRepository
	Consumption  ConsumptionRepository
	History      HistoryRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Plan:         NewPlanRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Consumption:  NewConsumptionRepository(db),
		History:      NewHistoryRepository(db),
	}
}
