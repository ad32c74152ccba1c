package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderLemonSqueezy = "lemonsqueezy"
	BillingProviderStripe       = "stripe"
)

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

// Subscription lifecycle states tracked on the entitlement record. The plan
// column is a projection of the state: active -> pro, everything else -> free.
const (
	SubscriptionStateNone     = "none"
	SubscriptionStateActive   = "active"
	SubscriptionStateCanceled = "canceled"
	SubscriptionStateRevoked  = "revoked"
)

// Entitlement is the canonical per-user subscription record. Exactly one row
// exists per user once the first billing event arrives; it is upserted by the
// webhook dispatcher and never deleted (cancellation/revocation downgrade the
// row, they do not remove it).
type Entitlement struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	Plan            string     `gorm:"type:varchar(50);not null;default:'free';index" json:"plan"`
	State           string     `gorm:"type:varchar(20);not null;default:'none'" json:"state"`
	Provider        string     `gorm:"type:varchar(20);not null;default:''" json:"provider"`
	SubscriptionID  string     `gorm:"type:varchar(191);not null;default:'';index" json:"subscription_id"`
	CustomerID      string     `gorm:"type:varchar(191);not null;default:''" json:"customer_id"`
	ProductID       string     `gorm:"type:varchar(191);not null;default:''" json:"product_id"`
	BillingInterval string     `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_interval"`
	RenewsAt        *time.Time `gorm:"type:timestamp;default:null" json:"renews_at,omitempty"`
	EndsAt          *time.Time `gorm:"type:timestamp;default:null" json:"ends_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
