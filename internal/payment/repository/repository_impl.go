package repository

import (
	"context"
	"errors"

	"github.com/mtandao/netbill/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository { return &repo{} }

func (r *repo) FindActiveGateway(ctx context.Context, db *gorm.DB) (*domain.Gateway, error) {
	var gateway domain.Gateway
	err := db.WithContext(ctx).First(&gateway, "active = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gateway, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) FindTransactionByReceipt(ctx context.Context, db *gorm.DB, receipt string) (*domain.Transaction, error) {
	if receipt == "" {
		return nil, nil
	}
	var txn domain.Transaction
	err := db.WithContext(ctx).First(&txn, "receipt = ?", receipt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repo) ListTransactionsByReference(ctx context.Context, db *gorm.DB, externalReference string) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	err := db.WithContext(ctx).
		Where("external_reference = ?", externalReference).
		Order("created_at ASC, id ASC").
		Find(&txns).Error
	return txns, err
}
