package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)

	// FindUnsettledBySubscriber returns the subscriber's PENDING, PAID and
	// EXPIRED subscriptions ordered oldest-created-first. The settlement
	// walk depends on this order being deterministic.
	FindUnsettledBySubscriber(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID) ([]Subscription, error)

	// FindExpiredActive returns ACTIVE subscriptions whose expiry has
	// passed, up to limit, for the reconciliation sweep.
	FindExpiredActive(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)

	// FindExpiredActiveBySubscriber is the per-subscriber variant used once
	// the sweep holds the subscriber's lock.
	FindExpiredActiveBySubscriber(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID, now time.Time) ([]Subscription, error)

	// FindSubscribersOwed returns distinct subscriber ids that still have
	// unsettled subscriptions, for the settlement re-drive job.
	FindSubscribersOwed(ctx context.Context, db *gorm.DB, limit int) ([]snowflake.ID, error)

	FindLatestBySubscriber(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, status Status, subscriberID snowflake.ID, afterID snowflake.ID, limit int) ([]Subscription, error)
}
