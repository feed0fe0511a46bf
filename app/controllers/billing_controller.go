package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/gorm"

	"github.com/FelixHaller/RoomCanvas/app/models"
	"github.com/FelixHaller/RoomCanvas/app/repository"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/billing"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/database"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/entitlements"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/usercontext"
)

// HandleStripeWebhook ingests billing provider events. Every payload is
// stored before processing; replays of a known event id are acknowledged
// without side effects.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	sigHeader := c.Get("Stripe-Signature")

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	event, verifyErr := billing.VerifyWebhookEvent(rawBody, sigHeader)
	eventID := ""
	eventType := ""
	if verifyErr == nil {
		eventID = event.ID
		eventType = string(event.Type)
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  verifyErr == nil,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if verifyErr != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	processErr := dispatchStripeEvent(ctx, svc, event)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, processErr)
	if processErr != nil {
		log.Errorf("[Billing] Processing %s (%s) failed: %v", event.ID, event.Type, processErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func dispatchStripeEvent(ctx context.Context, svc *billing.Service, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		in, err := billing.ParseCheckoutCompleted(event)
		if err != nil {
			return err
		}
		return svc.HandleCheckoutCompleted(ctx, *in)

	case "invoice.paid":
		stripeSubID, err := billing.ParseInvoicePaid(event)
		if err != nil {
			return err
		}
		if stripeSubID == "" {
			// One-off payment invoices carry no subscription.
			return nil
		}
		return svc.HandleRenewal(ctx, stripeSubID)

	case "customer.subscription.updated":
		in, err := billing.ParseSubscriptionUpdate(event)
		if err != nil {
			return err
		}
		return svc.HandleSubscriptionUpdated(ctx, *in)

	case "customer.subscription.deleted":
		in, err := billing.ParseSubscriptionUpdate(event)
		if err != nil {
			return err
		}
		return svc.HandleSubscriptionDeleted(ctx, in.StripeSubscriptionID)

	default:
		return nil
	}
}

// HandleCreateSubscriptionCheckout starts a hosted checkout for a paid plan
// and returns the redirect URL.
func HandleCreateSubscriptionCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	var body struct {
		PlanID uint `json:"plan_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.PlanID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "plan_id missing")
	}

	plan, err := repository.GetGlobalFactory().GetPlanRepository().GetByID(body.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown plan")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load plan")
	}
	if plan.IsFree() {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "The free plan needs no checkout")
	}

	url, err := billing.NewSubscriptionCheckoutURL(userCtx.UserID, plan)
	if err != nil {
		log.Errorf("[Billing] Checkout session for user %d failed: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create checkout session")
	}

	return c.JSON(fiber.Map{"checkout_url": url})
}

// HandleCreatePackCheckout starts a hosted checkout for a one-time image pack.
func HandleCreatePackCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	var body struct {
		PackSize int `json:"pack_size"`
	}
	if err := c.BodyParser(&body); err != nil || body.PackSize <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "pack_size must be positive")
	}

	url, err := billing.NewPackCheckoutURL(userCtx.UserID, body.PackSize)
	if err != nil {
		log.Errorf("[Billing] Pack checkout for user %d failed: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create checkout session")
	}

	return c.JSON(fiber.Map{"checkout_url": url})
}

// HandleChangePlan switches the user to another plan and resets the ledger
// to the new plan's baseline. Paid upgrades normally run through checkout;
// this endpoint covers provider-independent switches such as a downgrade to
// the free plan.
func HandleChangePlan(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	var body struct {
		PlanID uint `json:"plan_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.PlanID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "plan_id missing")
	}

	svc := entitlements.NewServiceFromDB(database.GetDB())
	if err := svc.Rebase(c.Context(), userCtx.UserID, body.PlanID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown plan")
		}
		log.Errorf("[Billing] Plan change for user %d failed: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to change plan")
	}

	ledger, err := svc.Usage(c.Context(), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load usage")
	}

	return c.JSON(fiber.Map{
		"plan_id":          body.PlanID,
		"used_images":      ledger.UsedImages,
		"available_images": ledger.AvailableImages,
	})
}

// HandleCancelSubscription flags the active subscription to end at the
// period boundary. Access and ledger stay untouched until the provider
// confirms the deletion.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	subRepo := repository.GetGlobalFactory().GetSubscriptionRepository()
	sub, err := subRepo.GetActiveByUserID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "No active subscription")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load subscription")
	}

	if sub.StripeSubscriptionID != "" {
		if err := billing.CancelSubscriptionAtPeriodEnd(sub.StripeSubscriptionID); err != nil {
			log.Errorf("[Billing] Provider cancel for user %d failed: %v", userCtx.UserID, err)
			return jsonError(c, fiber.StatusBadGateway, "provider_error", "Failed to cancel subscription with provider")
		}
	}

	sub.CancelAtPeriodEnd = true
	if err := subRepo.Update(sub); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update subscription")
	}

	return c.JSON(fiber.Map{
		"cancel_at_period_end": true,
		"current_period_end":   formatTimePtr(sub.CurrentPeriodEnd),
	})
}
