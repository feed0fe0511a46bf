package entitlements

import (
	"github.com/FelixHaller/RoomCanvas/app/models"
	"github.com/FelixHaller/RoomCanvas/app/repository"
	"gorm.io/gorm"
)

// Repository provides the DB operations used by the entitlement service.
type Repository interface {
	GetUser(userID uint) (*models.User, error)
	GetPlan(planID uint) (*models.Plan, error)
	GetFreePlan() (*models.Plan, error)
	GetLedger(userID uint) (*models.ImageConsumption, error)
	CreateLedgerIfNotExists(ledger *models.ImageConsumption) (*models.ImageConsumption, error)
	ConsumeOne(userID uint) (bool, error)
	ResetLedger(userID uint, availableImages int) error
	AddAvailable(userID uint, packSize int) error
	GetActiveSubscription(userID uint) (*models.Subscription, error)
	UpsertActiveSubscription(sub *models.Subscription) error
}

type gormRepository struct {
	users         repository.UserRepository
	plans         repository.PlanRepository
	subscriptions repository.SubscriptionRepository
	consumption   repository.ConsumptionRepository
}

// NewRepository creates an entitlement repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	repos := repository.NewRepositories(db)
	return &gormRepository{
		users:         repos.User,
		plans:         repos.Plan,
		subscriptions: repos.Subscription,
		consumption:   repos.Consumption,
	}
}

func (r *gormRepository) GetUser(userID uint) (*models.User, error) {
	return r.users.GetByID(userID)
}

func (r *gormRepository) GetPlan(planID uint) (*models.Plan, error) {
	return r.plans.GetByID(planID)
}

func (r *gormRepository) GetFreePlan() (*models.Plan, error) {
	return r.plans.GetByName(models.PlanFree)
}

func (r *gormRepository) GetLedger(userID uint) (*models.ImageConsumption, error) {
	return r.consumption.GetByUserID(userID)
}

func (r *gormRepository) CreateLedgerIfNotExists(ledger *models.ImageConsumption) (*models.ImageConsumption, error) {
	return r.consumption.CreateIfNotExists(ledger)
}

func (r *gormRepository) ConsumeOne(userID uint) (bool, error) {
	return r.consumption.ConsumeOne(userID)
}

func (r *gormRepository) ResetLedger(userID uint, availableImages int) error {
	return r.consumption.Reset(userID, availableImages)
}

func (r *gormRepository) AddAvailable(userID uint, packSize int) error {
	return r.consumption.AddAvailable(userID, packSize)
}

func (r *gormRepository) GetActiveSubscription(userID uint) (*models.Subscription, error) {
	return r.subscriptions.GetActiveByUserID(userID)
}

func (r *gormRepository) UpsertActiveSubscription(sub *models.Subscription) error {
	return r.subscriptions.UpsertActive(sub)
}
