package constants

// Static route constants
const (
	WebhooksRoute     = "/webhooks"
	LemonSqueezyRoute = "/lemonsqueezy"
	StripeRoute       = "/stripe"
	AuthRoute         = "/auth"
	APIRoute          = "/api"
	APIV1Route        = "/v1"
)
