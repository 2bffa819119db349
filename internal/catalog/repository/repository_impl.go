package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/mtandao/netbill/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.Package, error) {
	var pkg catalogdomain.Package
	err := db.WithContext(ctx).First(&pkg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]catalogdomain.Package, error) {
	var packages []catalogdomain.Package
	if err := db.WithContext(ctx).Order("price ASC").Find(&packages).Error; err != nil {
		return nil, err
	}
	return packages, nil
}
