package entitlements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/FelixHaller/RoomCanvas/app/models"
)

type fakeRepo struct {
	users    map[uint]*models.User
	plans    map[uint]*models.Plan
	freePlan *models.Plan
	ledgers  map[uint]*models.ImageConsumption
	subs     map[uint]*models.Subscription

	userErr   error
	ledgerErr error
}

func newFakeRepo() *fakeRepo {
	free := &models.Plan{ID: 1, Name: models.PlanFree, Price: 0, IncludedImages: 5}
	basic := &models.Plan{ID: 2, Name: models.PlanBasic, Price: 19, IncludedImages: 50}
	return &fakeRepo{
		users:    map[uint]*models.User{},
		plans:    map[uint]*models.Plan{1: free, 2: basic},
		freePlan: free,
		ledgers:  map[uint]*models.ImageConsumption{},
		subs:     map[uint]*models.Subscription{},
	}
}

func (r *fakeRepo) GetUser(userID uint) (*models.User, error) {
	if r.userErr != nil {
		return nil, r.userErr
	}
	user, ok := r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (r *fakeRepo) GetPlan(planID uint) (*models.Plan, error) {
	plan, ok := r.plans[planID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return plan, nil
}

func (r *fakeRepo) GetFreePlan() (*models.Plan, error) {
	return r.freePlan, nil
}

func (r *fakeRepo) GetLedger(userID uint) (*models.ImageConsumption, error) {
	if r.ledgerErr != nil {
		return nil, r.ledgerErr
	}
	ledger, ok := r.ledgers[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *ledger
	return &copied, nil
}

func (r *fakeRepo) CreateLedgerIfNotExists(ledger *models.ImageConsumption) (*models.ImageConsumption, error) {
	if existing, ok := r.ledgers[ledger.UserID]; ok {
		copied := *existing
		return &copied, nil
	}
	copied := *ledger
	r.ledgers[ledger.UserID] = &copied
	result := copied
	return &result, nil
}

func (r *fakeRepo) ConsumeOne(userID uint) (bool, error) {
	ledger, ok := r.ledgers[userID]
	if !ok || ledger.UsedImages >= ledger.AvailableImages {
		return false, nil
	}
	ledger.UsedImages++
	ledger.AvailableImages--
	return true, nil
}

func (r *fakeRepo) ResetLedger(userID uint, availableImages int) error {
	ledger, ok := r.ledgers[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	ledger.AvailableImages = availableImages
	ledger.UsedImages = 0
	return nil
}

func (r *fakeRepo) AddAvailable(userID uint, packSize int) error {
	ledger, ok := r.ledgers[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	ledger.AvailableImages += packSize
	return nil
}

func (r *fakeRepo) GetActiveSubscription(userID uint) (*models.Subscription, error) {
	sub, ok := r.subs[userID]
	if !ok || sub.Status != models.SubscriptionStatusActive {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeRepo) UpsertActiveSubscription(sub *models.Subscription) error {
	copied := *sub
	r.subs[sub.UserID] = &copied
	return nil
}

func TestCheckAndReserve_SeedsLedgerFromFreePlan(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	decision, err := svc.CheckAndReserve(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 0, decision.UsedImages)
	assert.Equal(t, 5, decision.AvailableImages)

	ledger := repo.ledgers[7]
	require.NotNil(t, ledger)
	assert.Equal(t, repo.freePlan.IncludedImages, ledger.AvailableImages)
}

func TestCheckAndReserve_DeniesWhenExhausted(t *testing.T) {
	repo := newFakeRepo()
	repo.ledgers[7] = &models.ImageConsumption{UserID: 7, AvailableImages: 3, UsedImages: 3}
	svc := NewService(repo)

	decision, err := svc.CheckAndReserve(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DenyReasonLimitExceeded, decision.Reason)
	assert.Equal(t, 3, decision.UsedImages)
	assert.Equal(t, 3, decision.AvailableImages)
}

func TestCheckAndReserve_NeverMutates(t *testing.T) {
	repo := newFakeRepo()
	repo.ledgers[7] = &models.ImageConsumption{UserID: 7, AvailableImages: 5, UsedImages: 1}
	svc := NewService(repo)

	for i := 0; i < 3; i++ {
		_, err := svc.CheckAndReserve(context.Background(), 7)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, repo.ledgers[7].UsedImages)
	assert.Equal(t, 5, repo.ledgers[7].AvailableImages)
}

func TestCommitConsumption_MovesBothCounters(t *testing.T) {
	repo := newFakeRepo()
	repo.ledgers[7] = &models.ImageConsumption{UserID: 7, AvailableImages: 5, UsedImages: 0}
	svc := NewService(repo)

	require.NoError(t, svc.CommitConsumption(context.Background(), 7))

	assert.Equal(t, 1, repo.ledgers[7].UsedImages)
	assert.Equal(t, 4, repo.ledgers[7].AvailableImages)
}

func TestCommitConsumption_StopsAtCrossover(t *testing.T) {
	repo := newFakeRepo()
	repo.ledgers[7] = &models.ImageConsumption{UserID: 7, AvailableImages: 5, UsedImages: 0}
	svc := NewService(repo)

	// Both counters move on each commit, so the used >= available boundary
	// arrives before all five starting units are spent.
	consumed := 0
	for {
		err := svc.CommitConsumption(context.Background(), 7)
		if err != nil {
			require.ErrorIs(t, err, ErrNoRemaining)
			break
		}
		consumed++
		require.Less(t, consumed, 10)
	}

	ledger := repo.ledgers[7]
	assert.GreaterOrEqual(t, ledger.UsedImages, ledger.AvailableImages)
	assert.Equal(t, 3, consumed)
}

func TestLegacyUserBypassesChecksAndCharges(t *testing.T) {
	repo := newFakeRepo()
	repo.users[9] = &models.User{ID: 9, IsLegacyUser: true}
	repo.ledgers[9] = &models.ImageConsumption{UserID: 9, AvailableImages: 0, UsedImages: 0}
	svc := NewService(repo)

	decision, err := svc.CheckAndReserve(context.Background(), 9)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	require.NoError(t, svc.CommitConsumption(context.Background(), 9))
	assert.Equal(t, 0, repo.ledgers[9].UsedImages)
	assert.Equal(t, 0, repo.ledgers[9].AvailableImages)
}

func TestIsLegacy_ReadErrorResolvesToFalse(t *testing.T) {
	repo := newFakeRepo()
	repo.userErr = errors.New("connection refused")
	svc := NewService(repo)

	assert.False(t, svc.IsLegacy(context.Background(), 7))
}

func TestRebase_ResetsLedgerAndActivatesPlan(t *testing.T) {
	repo := newFakeRepo()
	repo.ledgers[7] = &models.ImageConsumption{UserID: 7, AvailableImages: 2, UsedImages: 3}
	svc := NewService(repo)

	require.NoError(t, svc.Rebase(context.Background(), 7, 2))

	ledger := repo.ledgers[7]
	assert.Equal(t, 50, ledger.AvailableImages)
	assert.Equal(t, 0, ledger.UsedImages)

	sub := repo.subs[7]
	require.NotNil(t, sub)
	assert.Equal(t, uint(2), sub.PlanID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestRebase_KeepsPeriodEndAndPendingCancel(t *testing.T) {
	repo := newFakeRepo()
	periodEnd := time.Now().Add(480 * time.Hour)
	repo.subs[7] = &models.Subscription{
		UserID:            7,
		PlanID:            1,
		Status:            models.SubscriptionStatusActive,
		CurrentPeriodEnd:  &periodEnd,
		CancelAtPeriodEnd: true,
	}
	repo.ledgers[7] = &models.ImageConsumption{UserID: 7, AvailableImages: 2, UsedImages: 3}
	svc := NewService(repo)

	require.NoError(t, svc.Rebase(context.Background(), 7, 2))

	sub := repo.subs[7]
	assert.Equal(t, uint(2), sub.PlanID)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, periodEnd.Unix(), sub.CurrentPeriodEnd.Unix())
	assert.True(t, sub.CancelAtPeriodEnd)
}

func TestRebase_UnknownPlan(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	err := svc.Rebase(context.Background(), 7, 99)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGrantPack_AddsWithoutReset(t *testing.T) {
	repo := newFakeRepo()
	repo.ledgers[7] = &models.ImageConsumption{UserID: 7, AvailableImages: 1, UsedImages: 4}
	svc := NewService(repo)

	require.NoError(t, svc.GrantPack(context.Background(), 7, 10))

	ledger := repo.ledgers[7]
	assert.Equal(t, 11, ledger.AvailableImages)
	assert.Equal(t, 4, ledger.UsedImages)
}

func TestGrantPack_RejectsNonPositiveSize(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	assert.Error(t, svc.GrantPack(context.Background(), 7, 0))
	assert.Error(t, svc.GrantPack(context.Background(), 7, -3))
}

func TestGrantPack_SeedsLedgerFirst(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	require.NoError(t, svc.GrantPack(context.Background(), 7, 10))

	ledger := repo.ledgers[7]
	require.NotNil(t, ledger)
	// Free plan seed plus the granted pack.
	assert.Equal(t, 15, ledger.AvailableImages)
}

func TestUsage_RequiresUserID(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.Usage(context.Background(), 0)
	assert.Error(t, err)
}
