// Package entitlements decides, for every transformation request, whether a
// user may consume one unit of paid capacity, and performs the atomic
// consume/rebase/grant operations against the per-user image ledger.
package entitlements

import (
	"context"
	"errors"

	"github.com/FelixHaller/RoomCanvas/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ErrNoRemaining is returned by CommitConsumption when the conditional update
// finds the balance already exhausted. With the atomic commit this is the only
// way concurrent requests can lose the race; none of them overshoot.
var ErrNoRemaining = errors.New("no remaining image capacity")

// DenyReason classifies why a reservation was refused.
type DenyReason string

const (
	DenyReasonLimitExceeded DenyReason = "limit_exceeded"
)

// Decision is the outcome of CheckAndReserve. Usage figures are included on
// denial so callers can drive an upgrade prompt.
type Decision struct {
	Allowed         bool       `json:"allowed"`
	Reason          DenyReason `json:"reason,omitempty"`
	UsedImages      int        `json:"used_images"`
	AvailableImages int        `json:"available_images"`
}

// Remaining never reports a negative balance.
func (d Decision) Remaining() int {
	if d.AvailableImages <= d.UsedImages {
		return 0
	}
	return d.AvailableImages - d.UsedImages
}

// Service performs entitlement checks and ledger mutations through an
// injected repository.
type Service struct {
	repo Repository
}

// NewService creates an entitlement service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates an entitlement service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// IsLegacy reports whether the user carries the legacy override flag.
// Read errors resolve to false: absence of profile data must not bypass
// limits.
func (s *Service) IsLegacy(ctx context.Context, userID uint) bool {
	user, err := s.repo.GetUser(userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Entitlements] legacy lookup failed for user %d: %v", userID, err)
		}
		return false
	}
	return user.IsLegacyUser
}

// CheckAndReserve answers whether the user may consume one unit. It creates
// the ledger row on first access, seeded from the Free plan, and never
// mutates existing state.
func (s *Service) CheckAndReserve(ctx context.Context, userID uint) (Decision, error) {
	if userID == 0 {
		return Decision{}, errors.New("user_id is required")
	}
	if s.IsLegacy(ctx, userID) {
		return Decision{Allowed: true}, nil
	}

	ledger, err := s.ensureLedger(userID)
	if err != nil {
		return Decision{}, err
	}

	if !ledger.HasRemaining() {
		return Decision{
			Allowed:         false,
			Reason:          DenyReasonLimitExceeded,
			UsedImages:      ledger.UsedImages,
			AvailableImages: ledger.AvailableImages,
		}, nil
	}

	return Decision{
		Allowed:         true,
		UsedImages:      ledger.UsedImages,
		AvailableImages: ledger.AvailableImages,
	}, nil
}

// CommitConsumption books one delivered transformation: used_images goes up
// by one AND available_images goes down by one, in a single conditional
// update. Call it only after the transformation definitively succeeded.
// Legacy users are never charged.
func (s *Service) CommitConsumption(ctx context.Context, userID uint) error {
	if userID == 0 {
		return errors.New("user_id is required")
	}
	if s.IsLegacy(ctx, userID) {
		return nil
	}

	consumed, err := s.repo.ConsumeOne(userID)
	if err != nil {
		return err
	}
	if !consumed {
		return ErrNoRemaining
	}
	return nil
}

// Rebase switches the user's active subscription to the given plan and resets
// the ledger to the plan's baseline, discarding any partially-used balance.
// Used for manual tier switches and the free-plan activation path.
func (s *Service) Rebase(ctx context.Context, userID uint, planID uint) error {
	if userID == 0 {
		return errors.New("user_id is required")
	}

	plan, err := s.repo.GetPlan(planID)
	if err != nil {
		return err
	}

	sub := &models.Subscription{
		UserID: userID,
		PlanID: plan.ID,
		Status: models.SubscriptionStatusActive,
	}
	// A rebase changes the plan and the ledger, not the billing period. The
	// period end and a pending cancellation on the existing row survive.
	existing, err := s.repo.GetActiveSubscription(userID)
	switch {
	case err == nil:
		sub.CurrentPeriodEnd = existing.CurrentPeriodEnd
		sub.CancelAtPeriodEnd = existing.CancelAtPeriodEnd
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}
	if err := s.repo.UpsertActiveSubscription(sub); err != nil {
		return err
	}

	if _, err := s.ensureLedger(userID); err != nil {
		return err
	}
	return s.repo.ResetLedger(userID, plan.IncludedImages)
}

// GrantPack adds packSize units to available_images without touching
// used_images. Distinct from Rebase: additive, not a reset.
func (s *Service) GrantPack(ctx context.Context, userID uint, packSize int) error {
	if userID == 0 {
		return errors.New("user_id is required")
	}
	if packSize <= 0 {
		return errors.New("pack_size must be positive")
	}

	if _, err := s.ensureLedger(userID); err != nil {
		return err
	}
	return s.repo.AddAvailable(userID, packSize)
}

// Usage returns the current ledger figures, creating the row on first access.
func (s *Service) Usage(ctx context.Context, userID uint) (*models.ImageConsumption, error) {
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	return s.ensureLedger(userID)
}

// ensureLedger returns the user's ledger row, creating it seeded from the
// Free plan when missing. Creation is idempotent; concurrent creators
// converge on one row.
func (s *Service) ensureLedger(userID uint) (*models.ImageConsumption, error) {
	ledger, err := s.repo.GetLedger(userID)
	if err == nil {
		return ledger, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	freePlan, err := s.repo.GetFreePlan()
	if err != nil {
		return nil, err
	}
	return s.repo.CreateLedgerIfNotExists(&models.ImageConsumption{
		UserID:          userID,
		AvailableImages: freePlan.IncludedImages,
		UsedImages:      0,
	})
}
