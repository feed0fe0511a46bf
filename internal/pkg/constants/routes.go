package constants

// Static route constants
const (
	PublicRoute        = "/"
	APIRoute           = "/api"
	StripeWebhookRoute = "/webhooks/stripe"
)
