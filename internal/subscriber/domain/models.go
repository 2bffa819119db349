// Package domain contains persistence models for subscribers and the
// reference data the lifecycle engine reads: access routers and the ISP
// company used as SMS sender. All of it is provisioned out of band.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Subscriber is a PPPoE customer. The network credential (Username/Secret)
// is immutable once provisioned; rotation is handled elsewhere.
type Subscriber struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	FullName  string       `gorm:"type:text;not null"`
	Email     string       `gorm:"type:text"`
	Phone     string       `gorm:"type:text;not null"`
	Username  string       `gorm:"type:text;not null;uniqueIndex"`
	Secret    string       `gorm:"type:text;not null"`
	RouterID  snowflake.ID `gorm:"not null;index"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscriber) TableName() string { return "subscribers" }

// Router is an access device the engine grants or revokes service on.
type Router struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Name        string       `gorm:"type:text;not null"`
	Address     string       `gorm:"type:text;not null"`
	APIUsername string       `gorm:"type:text;not null"`
	APIPassword string       `gorm:"type:text;not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Router) TableName() string { return "routers" }

// Company is the ISP operator identity used when sending SMS. Exactly one
// row is expected to be active.
type Company struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	SenderID  string       `gorm:"type:text;not null"`
	SMSAPIKey string       `gorm:"column:sms_api_key;type:text"`
	Active    bool         `gorm:"not null;default:false;index"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Company) TableName() string { return "companies" }

var (
	ErrSubscriberNotFound = errors.New("subscriber_not_found")
	ErrRouterNotFound     = errors.New("router_not_found")
	ErrNoActiveCompany    = errors.New("no_active_company")
)
