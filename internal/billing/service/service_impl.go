package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/mtandao/netbill/internal/billing/domain"
	"github.com/mtandao/netbill/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		log:   p.Log.Named("billing.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Charge(ctx context.Context, tx *gorm.DB, subscriberID snowflake.ID, amount int64, sourceType billingdomain.SourceType, sourceRef, memo string) error {
	if err := validate(subscriberID, amount, sourceRef); err != nil {
		return err
	}
	switch sourceType {
	case billingdomain.SourceTypeSubscriptionCharge, billingdomain.SourceTypeUpgradeCharge:
	default:
		return billingdomain.ErrInvalidSourceType
	}

	return s.insert(ctx, tx, billingdomain.LedgerEntry{
		SubscriberID: subscriberID,
		ChargeAmount: amount,
		SourceType:   sourceType,
		SourceRef:    sourceRef,
		Memo:         memo,
	})
}

func (s *Service) RecordPayment(ctx context.Context, tx *gorm.DB, subscriberID snowflake.ID, amount int64, reference, memo string) error {
	if err := validate(subscriberID, amount, reference); err != nil {
		return err
	}

	return s.insert(ctx, tx, billingdomain.LedgerEntry{
		SubscriberID:  subscriberID,
		PaymentAmount: amount,
		SourceType:    billingdomain.SourceTypePayment,
		SourceRef:     reference,
		Memo:          memo,
	})
}

func (s *Service) Balance(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID) (int64, error) {
	if subscriberID == 0 {
		return 0, billingdomain.ErrInvalidSubscriber
	}

	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(charge_amount), 0) - COALESCE(SUM(payment_amount), 0)
		 FROM ledger_entries
		 WHERE subscriber_id = ?`,
		subscriberID,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) Entries(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID) ([]billingdomain.LedgerEntry, error) {
	if subscriberID == 0 {
		return nil, billingdomain.ErrInvalidSubscriber
	}

	var entries []billingdomain.LedgerEntry
	err := db.WithContext(ctx).
		Where("subscriber_id = ?", subscriberID).
		Order("occurred_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) insert(ctx context.Context, tx *gorm.DB, entry billingdomain.LedgerEntry) error {
	entry.ID = s.genID.Generate()
	now := s.clock.Now()
	entry.OccurredAt = now
	entry.CreatedAt = now

	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return err
	}
	s.log.Debug("ledger entry written",
		zap.String("subscriber_id", entry.SubscriberID.String()),
		zap.String("source_type", string(entry.SourceType)),
		zap.Int64("charge", entry.ChargeAmount),
		zap.Int64("payment", entry.PaymentAmount),
	)
	return nil
}

func validate(subscriberID snowflake.ID, amount int64, ref string) error {
	if subscriberID == 0 {
		return billingdomain.ErrInvalidSubscriber
	}
	if amount <= 0 {
		return billingdomain.ErrInvalidAmount
	}
	if strings.TrimSpace(ref) == "" {
		return billingdomain.ErrInvalidSourceRef
	}
	return nil
}
