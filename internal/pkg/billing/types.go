package billing

import "time"

// Checkout session modes mirrored from the payment provider.
const (
	CheckoutModeSubscription = "subscription"
	CheckoutModePayment      = "payment"
)

// CheckoutCompleted is the normalized shape of a completed checkout session.
// Subscription-mode checkouts carry a PlanID; payment-mode checkouts carry a
// PackSize.
type CheckoutCompleted struct {
	SessionID            string
	Mode                 string
	UserID               uint
	PlanID               uint
	PackSize             int
	StripeCustomerID     string
	StripeSubscriptionID string
}

// SubscriptionUpdate is the normalized shape of a provider-side subscription
// change. It only touches subscription fields, never the ledger.
type SubscriptionUpdate struct {
	StripeSubscriptionID string
	Status               string
	CancelAtPeriodEnd    bool
	CurrentPeriodEnd     *time.Time
	PriceID              string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
