package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	SubscriberID string `json:"subscriber_id"`
	PackageID    string `json:"package_id"`
}

type AdminCreateRequest struct {
	SubscriberID string `json:"subscriber_id"`
	PackageID    string `json:"package_id"`
	ActivateNow  bool   `json:"activate_now"`
}

type UpgradeRequest struct {
	SubscriptionID string
	NewPackageID   string
}

type ListRequest struct {
	Status       string
	SubscriberID string
	PageToken    string
	PageSize     int
}

type ListResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
	NextPageToken string         `json:"next_page_token,omitempty"`
	HasMore       bool           `json:"has_more"`
}

// SubscriberDetails is the operator-facing view of one subscriber: who they
// are, their most recent subscription and the live ledger balance.
type SubscriberDetails struct {
	SubscriberID   snowflake.ID `json:"subscriber_id"`
	FullName       string       `json:"full_name"`
	Email          string       `json:"email"`
	Phone          string       `json:"phone"`
	Username       string       `json:"username"`
	SubscriptionID snowflake.ID `json:"subscription_id"`
	PackageName    string       `json:"package_name"`
	DownloadSpeed  string       `json:"download_speed"`
	UploadSpeed    string       `json:"upload_speed"`
	Status         Status       `json:"status"`
	StartAt        *time.Time   `json:"start_at,omitempty"`
	ExpiryAt       *time.Time   `json:"expiry_at,omitempty"`
	Balance        int64        `json:"balance"`
}

// Service is the lifecycle engine. Every operation that mutates state runs
// under the subscriber's key lock and inside a single database transaction;
// a device failure aborts the transition with no state change.
type Service interface {
	// CreatePending records a package selection: a PENDING subscription
	// plus the ledger charge for the package price, as one unit.
	CreatePending(ctx context.Context, req CreateRequest) (Subscription, error)

	// CreateByAdmin creates and charges a subscription on behalf of an
	// operator, optionally activating it immediately.
	CreateByAdmin(ctx context.Context, req AdminCreateRequest) (Subscription, error)

	// MarkPaid stores the payment receipt and either parks the
	// subscription as PAID or activates it right away.
	MarkPaid(ctx context.Context, subscriptionID, receipt string, autoActivate bool) (Subscription, error)

	// Activate performs the explicit activation path. Valid from PENDING
	// and PAID; an already-ACTIVE subscription is a no-op so redelivered
	// payment callbacks cannot double-provision the device.
	Activate(ctx context.Context, subscriptionID string) (Subscription, error)

	// UpgradePackage charges for the new package and updates the device
	// profile atomically. Only ACTIVE subscriptions can be upgraded.
	UpgradePackage(ctx context.Context, req UpgradeRequest) (Subscription, error)

	// ExtendExpiry moves the expiry forward. An EXPIRED subscription is
	// re-enabled on the device and flipped to ACTIVE, but keeps its start
	// time: the extension grants exactly the given timestamp, not a fresh
	// billing period.
	ExtendExpiry(ctx context.Context, subscriptionID string, newExpiry time.Time) (Subscription, error)

	// SettleSubscriber walks the subscriber's unsettled subscriptions
	// oldest-first and activates or reactivates as long as the ledger
	// balance stays at or below zero. Called after every recorded payment
	// and re-driven by the scheduler.
	SettleSubscriber(ctx context.Context, subscriberID snowflake.ID) error

	// SweepSubscriber expires the subscriber's ACTIVE subscriptions whose
	// expiry has passed while they still owe money: device access is
	// disabled, status becomes EXPIRED, the subscriber is notified.
	// Returns the number of subscriptions suspended.
	SweepSubscriber(ctx context.Context, subscriberID snowflake.ID) (int, error)

	GetByID(ctx context.Context, subscriptionID string) (Subscription, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	GetSubscriberDetails(ctx context.Context, subscriberID string) (SubscriberDetails, error)
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrInvalidSubscriber    = errors.New("invalid_subscriber")
	ErrInvalidPackage       = errors.New("invalid_package")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrExpiryInPast         = errors.New("expiry_in_past")
)
