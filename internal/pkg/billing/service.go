package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/FelixHaller/RoomCanvas/app/models"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// subscriptionPeriod is the billing period applied when a checkout completes
// or an invoice is paid.
const subscriptionPeriod = 30 * 24 * time.Hour

// Entitlements is the slice of the entitlement service the billing processor
// needs: ledger rebase on subscription events and additive pack grants.
type Entitlements interface {
	Rebase(ctx context.Context, userID uint, planID uint) error
	GrantPack(ctx context.Context, userID uint, packSize int) error
}

// Service applies billing lifecycle events to subscriptions and the ledger.
// Handlers are idempotent at the event level: duplicate deliveries are
// filtered through RecordWebhookEvent before any handler runs.
type Service struct {
	repo Repository
	ents Entitlements
}

// NewService creates a billing service from injected dependencies.
func NewService(repo Repository, ents Entitlements) *Service {
	return &Service{repo: repo, ents: ents}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), entitlements.NewServiceFromDB(db))
}

// RecordWebhookEvent persists webhook payloads idempotently. The returned
// bool is false when the event id was seen before; callers must then skip
// processing.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// HandleCheckoutCompleted applies a completed checkout session. Subscription
// mode rebases the ledger to the purchased plan; payment mode grants an image
// pack on top of the existing balance.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, in CheckoutCompleted) error {
	if in.UserID == 0 {
		return errors.New("checkout session missing user id")
	}

	switch in.Mode {
	case CheckoutModePayment:
		if in.PackSize <= 0 {
			return errors.New("checkout session missing pack size")
		}
		return s.ents.GrantPack(ctx, in.UserID, in.PackSize)

	case CheckoutModeSubscription:
		plan, err := s.repo.GetPlanByID(in.PlanID)
		if err != nil {
			return err
		}
		if err := s.ents.Rebase(ctx, in.UserID, plan.ID); err != nil {
			return err
		}
		return s.linkStripeSubscription(in)

	default:
		return errors.New("unsupported checkout mode: " + in.Mode)
	}
}

// linkStripeSubscription stamps the external billing ids and the new period
// end onto the active subscription row created by the rebase.
func (s *Service) linkStripeSubscription(in CheckoutCompleted) error {
	sub, err := s.repo.GetActiveSubscriptionByUserID(in.UserID)
	if err != nil {
		return err
	}
	periodEnd := time.Now().Add(subscriptionPeriod)
	sub.CurrentPeriodEnd = &periodEnd
	sub.CancelAtPeriodEnd = false
	if in.StripeSubscriptionID != "" {
		sub.StripeSubscriptionID = in.StripeSubscriptionID
	}
	if in.StripeCustomerID != "" {
		sub.StripeCustomerID = in.StripeCustomerID
	}
	return s.repo.UpdateSubscription(sub)
}

// HandleRenewal applies a successful renewal (invoice paid): the ledger is
// rebased to the plan's baseline and the period end moves forward.
func (s *Service) HandleRenewal(ctx context.Context, stripeSubID string) error {
	if strings.TrimSpace(stripeSubID) == "" {
		return errors.New("renewal event missing subscription id")
	}

	sub, err := s.repo.GetSubscriptionByStripeID(stripeSubID)
	if err != nil {
		return err
	}

	periodEnd := time.Now().Add(subscriptionPeriod)
	sub.Status = models.SubscriptionStatusActive
	sub.CurrentPeriodEnd = &periodEnd
	if err := s.repo.UpdateSubscription(sub); err != nil {
		return err
	}

	return s.ents.Rebase(ctx, sub.UserID, sub.PlanID)
}

// HandleSubscriptionUpdated syncs provider-side subscription fields. It never
// touches the ledger; balance changes only happen on checkout, renewal, or
// explicit rebase.
func (s *Service) HandleSubscriptionUpdated(ctx context.Context, in SubscriptionUpdate) error {
	if strings.TrimSpace(in.StripeSubscriptionID) == "" {
		return errors.New("subscription event missing subscription id")
	}

	sub, err := s.repo.GetSubscriptionByStripeID(in.StripeSubscriptionID)
	if err != nil {
		return err
	}

	if in.Status != "" {
		sub.Status = in.Status
	}
	sub.CancelAtPeriodEnd = in.CancelAtPeriodEnd
	if in.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = in.CurrentPeriodEnd
	}
	if in.PriceID != "" {
		// Provider-side plan switches keep the local plan mapping current.
		// The new allotment only arrives with the next renewal invoice.
		if plan, err := s.repo.GetPlanByStripePriceID(in.PriceID); err == nil {
			sub.PlanID = plan.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		} else {
			log.Warnf("[Billing] subscription %s references unknown price %s", in.StripeSubscriptionID, in.PriceID)
		}
	}
	return s.repo.UpdateSubscription(sub)
}

// HandleSubscriptionDeleted marks the subscription cancelled. The existing
// ledger balance persists until natural exhaustion or a downgrade.
func (s *Service) HandleSubscriptionDeleted(ctx context.Context, stripeSubID string) error {
	if strings.TrimSpace(stripeSubID) == "" {
		return errors.New("subscription event missing subscription id")
	}

	sub, err := s.repo.GetSubscriptionByStripeID(stripeSubID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] delete event for unknown subscription %s, ignoring", stripeSubID)
			return nil
		}
		return err
	}

	sub.Status = models.SubscriptionStatusCancelled
	return s.repo.UpdateSubscription(sub)
}
