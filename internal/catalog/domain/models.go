// Package domain contains the package catalog: immutable reference data
// describing what a subscriber can buy. Catalog management is out of scope;
// rows are seeded or managed elsewhere.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Package is an internet plan. Price is in whole currency units (KES).
// RouterProfile names the PPP profile applied on the access device.
type Package struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	Name          string       `gorm:"type:text;not null;uniqueIndex"`
	Price         int64        `gorm:"not null"`
	DownloadSpeed string       `gorm:"type:text;not null"`
	UploadSpeed   string       `gorm:"type:text;not null"`
	RouterProfile string       `gorm:"type:text;not null"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Package) TableName() string { return "packages" }

var ErrPackageNotFound = errors.New("package_not_found")
