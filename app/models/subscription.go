package models

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription holds the billing plan of a user. Every user owns exactly one
// row, created with plan=free at signup and mutated only by the Stripe
// webhook handler.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	Plan                 string     `gorm:"type:varchar(20);not null;default:'free';index" json:"plan"`
	Status               string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	StripeSubscriptionID string     `gorm:"type:varchar(100);default:null;index" json:"-"`
	StripePriceID        string     `gorm:"type:varchar(100);default:null" json:"-"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the subscription currently entitles the user.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}
