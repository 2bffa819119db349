// Package domain contains the append-only subscriber ledger. Balance is
// never stored; it is recomputed from the entries on every query.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type SourceType string

const (
	SourceTypeSubscriptionCharge SourceType = "subscription_charge"
	SourceTypeUpgradeCharge      SourceType = "upgrade_charge"
	SourceTypePayment            SourceType = "payment"
)

// LedgerEntry is immutable once written. Exactly one of ChargeAmount and
// PaymentAmount is non-zero; both are positive magnitudes.
type LedgerEntry struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	SubscriberID  snowflake.ID `gorm:"not null;index"`
	ChargeAmount  int64        `gorm:"not null;default:0"`
	PaymentAmount int64        `gorm:"not null;default:0"`
	SourceType    SourceType   `gorm:"type:text;not null;index"`
	SourceRef     string       `gorm:"type:text;not null"`
	Memo          string       `gorm:"type:text"`
	OccurredAt    time.Time    `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// Service writes ledger entries and derives balances. Writers take the
// caller's gorm handle so a charge joins the caller's transaction and rolls
// back with it.
type Service interface {
	Charge(ctx context.Context, tx *gorm.DB, subscriberID snowflake.ID, amount int64, sourceType SourceType, sourceRef, memo string) error
	RecordPayment(ctx context.Context, tx *gorm.DB, subscriberID snowflake.ID, amount int64, reference, memo string) error

	// Balance returns Σ charges − Σ payments for the subscriber. Positive
	// means the subscriber owes money.
	Balance(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID) (int64, error)

	Entries(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID) ([]LedgerEntry, error)
}

var (
	ErrInvalidSubscriber = errors.New("invalid_subscriber")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidSourceType = errors.New("invalid_source_type")
	ErrInvalidSourceRef  = errors.New("invalid_source_ref")
)
