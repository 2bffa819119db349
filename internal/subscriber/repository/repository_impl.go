package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	subscriberdomain "github.com/mtandao/netbill/internal/subscriber/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriberdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriberdomain.Subscriber, error) {
	var subscriber subscriberdomain.Subscriber
	err := db.WithContext(ctx).First(&subscriber, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscriber, nil
}

func (r *repo) FindByUsername(ctx context.Context, db *gorm.DB, username string) (*subscriberdomain.Subscriber, error) {
	var subscriber subscriberdomain.Subscriber
	err := db.WithContext(ctx).First(&subscriber, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscriber, nil
}

func (r *repo) FindRouterByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriberdomain.Router, error) {
	var router subscriberdomain.Router
	err := db.WithContext(ctx).First(&router, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &router, nil
}

func (r *repo) FindActiveCompany(ctx context.Context, db *gorm.DB) (*subscriberdomain.Company, error) {
	var company subscriberdomain.Company
	err := db.WithContext(ctx).First(&company, "active = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}
