package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindActiveGateway(ctx context.Context, db *gorm.DB) (*Gateway, error)
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *Transaction) error

	// FindTransactionByReceipt is the idempotency probe for redelivered
	// callbacks; only successful deliveries carry a receipt.
	FindTransactionByReceipt(ctx context.Context, db *gorm.DB, receipt string) (*Transaction, error)

	ListTransactionsByReference(ctx context.Context, db *gorm.DB, externalReference string) ([]Transaction, error)
}
