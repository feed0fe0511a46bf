package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/FelixHaller/RoomCanvas/app/models"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/entitlements"
)

type fakeBillingRepo struct {
	plans        map[uint]*models.Plan
	subsByStripe map[string]*models.Subscription
	activeSubs   map[uint]*models.Subscription
	events       map[string]*models.BillingWebhookEvent
	nextEventID  uint
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{
		plans: map[uint]*models.Plan{
			1: {ID: 1, Name: models.PlanFree, IncludedImages: 5},
			2: {ID: 2, Name: models.PlanBasic, Price: 19, IncludedImages: 50, StripePriceID: "price_basic"},
			3: {ID: 3, Name: models.PlanBusiness, Price: 49, IncludedImages: 200, StripePriceID: "price_business"},
		},
		subsByStripe: map[string]*models.Subscription{},
		activeSubs:   map[uint]*models.Subscription{},
		events:       map[string]*models.BillingWebhookEvent{},
	}
}

func (r *fakeBillingRepo) GetPlanByID(id uint) (*models.Plan, error) {
	plan, ok := r.plans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return plan, nil
}

func (r *fakeBillingRepo) GetPlanByStripePriceID(priceID string) (*models.Plan, error) {
	for _, plan := range r.plans {
		if plan.StripePriceID == priceID {
			return plan, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeBillingRepo) GetSubscriptionByStripeID(stripeSubID string) (*models.Subscription, error) {
	sub, ok := r.subsByStripe[stripeSubID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sub, nil
}

func (r *fakeBillingRepo) GetActiveSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	sub, ok := r.activeSubs[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sub, nil
}

func (r *fakeBillingRepo) UpdateSubscription(sub *models.Subscription) error {
	r.activeSubs[sub.UserID] = sub
	if sub.StripeSubscriptionID != "" {
		r.subsByStripe[sub.StripeSubscriptionID] = sub
	}
	return nil
}

func (r *fakeBillingRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		return false, existing, nil
	}
	r.nextEventID++
	event.ID = r.nextEventID
	r.events[key] = event
	return true, event, nil
}

func (r *fakeBillingRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for _, event := range r.events {
		if event.ID == id {
			now := time.Now()
			event.ProcessedAt = &now
			event.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeEntitlements struct {
	rebases []struct {
		UserID uint
		PlanID uint
	}
	grants []struct {
		UserID   uint
		PackSize int
	}
}

func (f *fakeEntitlements) Rebase(ctx context.Context, userID uint, planID uint) error {
	f.rebases = append(f.rebases, struct {
		UserID uint
		PlanID uint
	}{userID, planID})
	return nil
}

func (f *fakeEntitlements) GrantPack(ctx context.Context, userID uint, packSize int) error {
	f.grants = append(f.grants, struct {
		UserID   uint
		PackSize int
	}{userID, packSize})
	return nil
}

// subscriptionLedgerRepo adapts fakeBillingRepo into the entitlement
// repository, sharing subscription state so renewal tests run against the
// real rebase logic. The upsert copies fields the same way the GORM
// subscription repository does.
type subscriptionLedgerRepo struct {
	billing *fakeBillingRepo
	ledgers map[uint]*models.ImageConsumption
}

func (r *subscriptionLedgerRepo) GetUser(userID uint) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *subscriptionLedgerRepo) GetPlan(planID uint) (*models.Plan, error) {
	return r.billing.GetPlanByID(planID)
}

func (r *subscriptionLedgerRepo) GetFreePlan() (*models.Plan, error) {
	return r.billing.plans[1], nil
}

func (r *subscriptionLedgerRepo) GetLedger(userID uint) (*models.ImageConsumption, error) {
	ledger, ok := r.ledgers[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return ledger, nil
}

func (r *subscriptionLedgerRepo) CreateLedgerIfNotExists(ledger *models.ImageConsumption) (*models.ImageConsumption, error) {
	if existing, ok := r.ledgers[ledger.UserID]; ok {
		return existing, nil
	}
	r.ledgers[ledger.UserID] = ledger
	return ledger, nil
}

func (r *subscriptionLedgerRepo) ConsumeOne(userID uint) (bool, error) {
	ledger, ok := r.ledgers[userID]
	if !ok || ledger.UsedImages >= ledger.AvailableImages {
		return false, nil
	}
	ledger.UsedImages++
	ledger.AvailableImages--
	return true, nil
}

func (r *subscriptionLedgerRepo) ResetLedger(userID uint, availableImages int) error {
	ledger, ok := r.ledgers[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	ledger.UsedImages = 0
	ledger.AvailableImages = availableImages
	return nil
}

func (r *subscriptionLedgerRepo) AddAvailable(userID uint, packSize int) error {
	ledger, ok := r.ledgers[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	ledger.AvailableImages += packSize
	return nil
}

func (r *subscriptionLedgerRepo) GetActiveSubscription(userID uint) (*models.Subscription, error) {
	return r.billing.GetActiveSubscriptionByUserID(userID)
}

func (r *subscriptionLedgerRepo) UpsertActiveSubscription(sub *models.Subscription) error {
	existing, ok := r.billing.activeSubs[sub.UserID]
	if !ok {
		r.billing.activeSubs[sub.UserID] = sub
		return nil
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
	*sub = *existing
	return nil
}

func TestRecordWebhookEvent_DeduplicatesByEventID(t *testing.T) {
	repo := newFakeBillingRepo()
	svc := NewService(repo, &fakeEntitlements{})
	ctx := context.Background()

	in := WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_123",
		EventType:       "invoice.paid",
		PayloadJSON:     `{"id":"evt_123"}`,
		SignatureValid:  true,
	}

	created, first, err := svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, first)

	created, second, err := svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestRecordWebhookEvent_MissingEventIDFallsBackToPayloadHash(t *testing.T) {
	repo := newFakeBillingRepo()
	svc := NewService(repo, &fakeEntitlements{})
	ctx := context.Background()

	in := WebhookEventInput{
		Provider:    models.BillingProviderStripe,
		PayloadJSON: `{"some":"payload"}`,
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Contains(t, stored.ProviderEventID, "hash:")

	created, _, err = svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestHandleCheckoutCompleted_SubscriptionRebases(t *testing.T) {
	repo := newFakeBillingRepo()
	repo.activeSubs[7] = &models.Subscription{UserID: 7, PlanID: 2, Status: models.SubscriptionStatusActive}
	ents := &fakeEntitlements{}
	svc := NewService(repo, ents)

	err := svc.HandleCheckoutCompleted(context.Background(), CheckoutCompleted{
		SessionID:            "cs_1",
		Mode:                 CheckoutModeSubscription,
		UserID:               7,
		PlanID:               2,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
	})
	require.NoError(t, err)

	require.Len(t, ents.rebases, 1)
	assert.Equal(t, uint(7), ents.rebases[0].UserID)
	assert.Equal(t, uint(2), ents.rebases[0].PlanID)

	sub := repo.activeSubs[7]
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)
	assert.Equal(t, "cus_1", sub.StripeCustomerID)
	assert.False(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.WithinDuration(t, time.Now().Add(subscriptionPeriod), *sub.CurrentPeriodEnd, time.Minute)
}

func TestHandleCheckoutCompleted_PackGrants(t *testing.T) {
	repo := newFakeBillingRepo()
	ents := &fakeEntitlements{}
	svc := NewService(repo, ents)

	err := svc.HandleCheckoutCompleted(context.Background(), CheckoutCompleted{
		SessionID: "cs_2",
		Mode:      CheckoutModePayment,
		UserID:    7,
		PackSize:  10,
	})
	require.NoError(t, err)

	require.Len(t, ents.grants, 1)
	assert.Equal(t, 10, ents.grants[0].PackSize)
	assert.Empty(t, ents.rebases)
}

func TestHandleCheckoutCompleted_Invalid(t *testing.T) {
	svc := NewService(newFakeBillingRepo(), &fakeEntitlements{})
	ctx := context.Background()

	assert.Error(t, svc.HandleCheckoutCompleted(ctx, CheckoutCompleted{Mode: CheckoutModePayment, PackSize: 10}))
	assert.Error(t, svc.HandleCheckoutCompleted(ctx, CheckoutCompleted{Mode: CheckoutModePayment, UserID: 7}))
	assert.Error(t, svc.HandleCheckoutCompleted(ctx, CheckoutCompleted{Mode: "setup", UserID: 7}))
}

func TestHandleRenewal_RebasesAndExtendsPeriod(t *testing.T) {
	repo := newFakeBillingRepo()
	old := time.Now().Add(-time.Hour)
	sub := &models.Subscription{UserID: 7, PlanID: 2, Status: models.SubscriptionStatusActive, StripeSubscriptionID: "sub_1", CurrentPeriodEnd: &old}
	repo.subsByStripe["sub_1"] = sub
	repo.activeSubs[7] = sub
	ents := &fakeEntitlements{}
	svc := NewService(repo, ents)

	require.NoError(t, svc.HandleRenewal(context.Background(), "sub_1"))

	require.Len(t, ents.rebases, 1)
	assert.Equal(t, uint(2), ents.rebases[0].PlanID)
	assert.True(t, sub.CurrentPeriodEnd.After(time.Now()))
}

func TestHandleRenewal_PeriodSurvivesLedgerRebase(t *testing.T) {
	repo := newFakeBillingRepo()
	old := time.Now().Add(-time.Hour)
	sub := &models.Subscription{
		UserID:               7,
		PlanID:               2,
		Status:               models.SubscriptionStatusActive,
		StripeSubscriptionID: "sub_1",
		CurrentPeriodEnd:     &old,
		CancelAtPeriodEnd:    true,
	}
	repo.subsByStripe["sub_1"] = sub
	repo.activeSubs[7] = sub
	ledgers := &subscriptionLedgerRepo{billing: repo, ledgers: map[uint]*models.ImageConsumption{
		7: {UserID: 7, AvailableImages: 10, UsedImages: 40},
	}}
	svc := NewService(repo, entitlements.NewService(ledgers))

	require.NoError(t, svc.HandleRenewal(context.Background(), "sub_1"))

	stored := repo.activeSubs[7]
	require.NotNil(t, stored.CurrentPeriodEnd)
	assert.True(t, stored.CurrentPeriodEnd.After(time.Now()))
	assert.True(t, stored.CancelAtPeriodEnd)
	assert.Equal(t, "sub_1", stored.StripeSubscriptionID)

	ledger := ledgers.ledgers[7]
	assert.Equal(t, 0, ledger.UsedImages)
	assert.Equal(t, 50, ledger.AvailableImages)
}

func TestHandleRenewal_UnknownSubscription(t *testing.T) {
	svc := NewService(newFakeBillingRepo(), &fakeEntitlements{})

	err := svc.HandleRenewal(context.Background(), "sub_missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestHandleSubscriptionUpdated_NeverTouchesLedger(t *testing.T) {
	repo := newFakeBillingRepo()
	sub := &models.Subscription{UserID: 7, PlanID: 2, Status: models.SubscriptionStatusActive, StripeSubscriptionID: "sub_1"}
	repo.subsByStripe["sub_1"] = sub
	ents := &fakeEntitlements{}
	svc := NewService(repo, ents)

	periodEnd := time.Now().Add(720 * time.Hour)
	err := svc.HandleSubscriptionUpdated(context.Background(), SubscriptionUpdate{
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusActive,
		CancelAtPeriodEnd:    true,
		CurrentPeriodEnd:     &periodEnd,
	})
	require.NoError(t, err)

	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, &periodEnd, sub.CurrentPeriodEnd)
	assert.Empty(t, ents.rebases)
	assert.Empty(t, ents.grants)
}

func TestHandleSubscriptionUpdated_MapsPriceToPlan(t *testing.T) {
	repo := newFakeBillingRepo()
	sub := &models.Subscription{UserID: 7, PlanID: 2, Status: models.SubscriptionStatusActive, StripeSubscriptionID: "sub_1"}
	repo.subsByStripe["sub_1"] = sub
	ents := &fakeEntitlements{}
	svc := NewService(repo, ents)

	err := svc.HandleSubscriptionUpdated(context.Background(), SubscriptionUpdate{
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusActive,
		PriceID:              "price_business",
	})
	require.NoError(t, err)
	assert.Equal(t, uint(3), sub.PlanID)
	assert.Empty(t, ents.rebases)

	// Unknown prices leave the plan mapping alone.
	err = svc.HandleSubscriptionUpdated(context.Background(), SubscriptionUpdate{
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusActive,
		PriceID:              "price_unknown",
	})
	require.NoError(t, err)
	assert.Equal(t, uint(3), sub.PlanID)
}

func TestHandleSubscriptionDeleted_MarksCancelled(t *testing.T) {
	repo := newFakeBillingRepo()
	sub := &models.Subscription{UserID: 7, PlanID: 2, Status: models.SubscriptionStatusActive, StripeSubscriptionID: "sub_1"}
	repo.subsByStripe["sub_1"] = sub
	svc := NewService(repo, &fakeEntitlements{})

	require.NoError(t, svc.HandleSubscriptionDeleted(context.Background(), "sub_1"))
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
}

func TestHandleSubscriptionDeleted_UnknownSubscriptionIgnored(t *testing.T) {
	svc := NewService(newFakeBillingRepo(), &fakeEntitlements{})

	assert.NoError(t, svc.HandleSubscriptionDeleted(context.Background(), "sub_missing"))
}
