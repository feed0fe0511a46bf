package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/FelixHaller/RoomCanvas/app/models"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/env"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
)

// SetupStripe configures the Stripe client key. Missing credentials are an
// unrecoverable configuration error and abort startup.
func SetupStripe() {
	key := strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
	if key == "" {
		panic("STRIPE_SECRET_KEY is not configured")
	}
	stripe.Key = key
}

// VerifyWebhookEvent checks the Stripe signature header against the raw
// payload. Events that do not verify are rejected before any state mutation.
func VerifyWebhookEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	secret := strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
	if secret == "" {
		return stripe.Event{}, errors.New("STRIPE_WEBHOOK_SECRET is not configured")
	}
	return webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// ParseCheckoutCompleted normalizes a checkout.session.completed event.
// The session metadata carries user_id plus either plan_id (subscription
// mode) or pack_size (payment mode).
func ParseCheckoutCompleted(event stripe.Event) (*CheckoutCompleted, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("invalid checkout session payload: %w", err)
	}

	out := &CheckoutCompleted{
		SessionID: sess.ID,
		Mode:      string(sess.Mode),
	}
	if sess.Customer != nil {
		out.StripeCustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.StripeSubscriptionID = sess.Subscription.ID
	}

	userID, err := metadataUint(sess.Metadata, "user_id")
	if err != nil {
		return nil, err
	}
	out.UserID = userID

	switch out.Mode {
	case CheckoutModeSubscription:
		planID, err := metadataUint(sess.Metadata, "plan_id")
		if err != nil {
			return nil, err
		}
		out.PlanID = planID
	case CheckoutModePayment:
		packSize, err := metadataUint(sess.Metadata, "pack_size")
		if err != nil {
			return nil, err
		}
		out.PackSize = int(packSize)
	default:
		return nil, fmt.Errorf("unsupported checkout mode: %q", out.Mode)
	}

	return out, nil
}

// ParseInvoicePaid extracts the subscription id from an invoice.paid event.
// One-off payment invoices carry no subscription and yield an empty id.
func ParseInvoicePaid(event stripe.Event) (string, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return "", fmt.Errorf("invalid invoice payload: %w", err)
	}
	if inv.Subscription == nil {
		return "", nil
	}
	return inv.Subscription.ID, nil
}

// ParseSubscriptionUpdate normalizes customer.subscription.updated/deleted
// events.
func ParseSubscriptionUpdate(event stripe.Event) (*SubscriptionUpdate, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("invalid subscription payload: %w", err)
	}
	if sub.ID == "" {
		return nil, errors.New("subscription event missing subscription id")
	}

	out := &SubscriptionUpdate{
		StripeSubscriptionID: sub.ID,
		Status:               stripeStatusToLocal(sub.Status),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0)
		out.CurrentPeriodEnd = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
	}
	return out, nil
}

// stripeStatusToLocal collapses Stripe's status set onto the local
// active/cancelled pair.
func stripeStatusToLocal(status stripe.SubscriptionStatus) string {
	switch status {
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionStatusCancelled
	default:
		return models.SubscriptionStatusActive
	}
}

// NewSubscriptionCheckoutURL creates a hosted checkout session for a plan and
// returns its redirect URL.
func NewSubscriptionCheckoutURL(userID uint, plan *models.Plan) (string, error) {
	if plan.StripePriceID == "" {
		return "", fmt.Errorf("plan %s has no Stripe price configured", plan.Name)
	}
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		return "", errors.New("PUBLIC_DOMAIN is not configured")
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(base + "/billing/success"),
		CancelURL:  stripe.String(base + "/billing/cancel"),
	}
	params.AddMetadata("user_id", strconv.FormatUint(uint64(userID), 10))
	params.AddMetadata("plan_id", strconv.FormatUint(uint64(plan.ID), 10))

	sess, err := session.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// NewPackCheckoutURL creates a hosted one-off checkout session for an image
// pack and returns its redirect URL.
func NewPackCheckoutURL(userID uint, packSize int) (string, error) {
	priceID := strings.TrimSpace(env.GetEnv("STRIPE_PACK_PRICE_ID", ""))
	if priceID == "" {
		return "", errors.New("STRIPE_PACK_PRICE_ID is not configured")
	}
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		return "", errors.New("PUBLIC_DOMAIN is not configured")
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(base + "/billing/success"),
		CancelURL:  stripe.String(base + "/billing/cancel"),
	}
	params.AddMetadata("user_id", strconv.FormatUint(uint64(userID), 10))
	params.AddMetadata("pack_size", strconv.Itoa(packSize))

	sess, err := session.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// CancelSubscriptionAtPeriodEnd asks the provider to stop the subscription
// at the period boundary instead of immediately.
func CancelSubscriptionAtPeriodEnd(stripeSubID string) error {
	_, err := subscription.Update(stripeSubID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	return err
}

func metadataUint(metadata map[string]string, key string) (uint, error) {
	raw := strings.TrimSpace(metadata[key])
	if raw == "" {
		return 0, fmt.Errorf("checkout session metadata missing %s", key)
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("checkout session metadata %s is not numeric: %w", key, err)
	}
	return uint(v), nil
}
