// Package domain contains the subscription model and the lifecycle engine
// contract. A subscription moves through PENDING, PAID, ACTIVE and EXPIRED;
// start and expiry are set the first time it reaches ACTIVE and never
// cleared afterwards.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

// Subscription ties a subscriber to a package on an access device.
// A subscriber accumulates subscriptions over time; old rows are history
// and are never deleted.
type Subscription struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	SubscriberID     snowflake.ID `gorm:"not null;index" json:"subscriber_id"`
	PackageID        snowflake.ID `gorm:"not null;index" json:"package_id"`
	RouterID         snowflake.ID `gorm:"not null" json:"router_id"`
	Status           Status       `gorm:"type:text;not null;index" json:"status"`
	PaymentReference *string      `gorm:"type:text" json:"payment_reference,omitempty"`
	StartAt          *time.Time   `gorm:"" json:"start_at,omitempty"`
	ExpiryAt         *time.Time   `gorm:"index" json:"expiry_at,omitempty"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Activated reports whether this subscription ever reached ACTIVE.
func (s Subscription) Activated() bool {
	return s.StartAt != nil && s.ExpiryAt != nil
}
