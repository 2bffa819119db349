package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mtandao/netbill/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository { return &repo{} }

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Save(sub).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindUnsettledBySubscriber(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := db.WithContext(ctx).
		Where("subscriber_id = ? AND status IN ?", subscriberID, []domain.Status{
			domain.StatusPending,
			domain.StatusPaid,
			domain.StatusExpired,
		}).
		Order("created_at ASC, id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *repo) FindExpiredActive(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := db.WithContext(ctx).
		Where("status = ? AND expiry_at IS NOT NULL AND expiry_at < ?", domain.StatusActive, now).
		Order("expiry_at ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *repo) FindExpiredActiveBySubscriber(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID, now time.Time) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := db.WithContext(ctx).
		Where("subscriber_id = ? AND status = ? AND expiry_at IS NOT NULL AND expiry_at < ?",
			subscriberID, domain.StatusActive, now).
		Order("expiry_at ASC").
		Find(&subs).Error
	return subs, err
}

func (r *repo) FindSubscribersOwed(ctx context.Context, db *gorm.DB, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Distinct("subscriber_id").
		Where("status IN ?", []domain.Status{domain.StatusPending, domain.StatusPaid}).
		Limit(limit).
		Pluck("subscriber_id", &ids).Error
	return ids, err
}

func (r *repo) FindLatestBySubscriber(ctx context.Context, db *gorm.DB, subscriberID snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).
		Where("subscriber_id = ?", subscriberID).
		Order("created_at DESC, id DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, status domain.Status, subscriberID snowflake.ID, afterID snowflake.ID, limit int) ([]domain.Subscription, error) {
	q := db.WithContext(ctx).Model(&domain.Subscription{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if subscriberID != 0 {
		q = q.Where("subscriber_id = ?", subscriberID)
	}
	if afterID != 0 {
		q = q.Where("id > ?", afterID)
	}

	var subs []domain.Subscription
	err := q.Order("id ASC").Limit(limit).Find(&subs).Error
	return subs, err
}
