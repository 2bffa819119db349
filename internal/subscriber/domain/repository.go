package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscriber, error)
	FindByUsername(ctx context.Context, db *gorm.DB, username string) (*Subscriber, error)
	FindRouterByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Router, error)
	FindActiveCompany(ctx context.Context, db *gorm.DB) (*Company, error)
}
