// Package domain contains payment gateway configuration, the transaction
// audit log and the callback wire format. Every callback delivery is
// recorded as a transaction whether or not it settles anything.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Gateway is an STK push provider configuration. Exactly one row is
// expected to be active; credentials are provisioned out of band.
type Gateway struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Name        string       `gorm:"type:text;not null"`
	APIURL      string       `gorm:"type:text;not null"`
	AuthToken   string       `gorm:"type:text;not null"`
	ChannelID   string       `gorm:"type:text;not null"`
	Provider    string       `gorm:"type:text;not null;default:m-pesa"`
	CallbackURL string       `gorm:"type:text;not null"`
	Active      bool         `gorm:"not null;default:false;index"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Gateway) TableName() string { return "payment_gateways" }

// Transaction is one callback delivery, kept verbatim for audit. Receipt is
// the mobile money receipt number; ExternalReference correlates back to the
// subscription the push was initiated for.
type Transaction struct {
	ID                snowflake.ID   `gorm:"primaryKey"`
	ExternalReference string         `gorm:"type:text;not null;index"`
	Receipt           string         `gorm:"type:text;index"`
	Status            string         `gorm:"type:text;not null"`
	ResultCode        int            `gorm:"not null"`
	Amount            int64          `gorm:"not null"`
	Phone             string         `gorm:"type:text"`
	RawPayload        datatypes.JSON `gorm:"type:json"`
	OccurredAt        time.Time      `gorm:"not null"`
	CreatedAt         time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Transaction) TableName() string { return "payment_transactions" }

// CallbackPayload is the provider's delivery envelope. The interesting
// fields live in the nested response object.
type CallbackPayload struct {
	ForwardURL string           `json:"forward_url,omitempty"`
	Response   CallbackResponse `json:"response"`
}

type CallbackResponse struct {
	Amount             float64 `json:"Amount"`
	CheckoutRequestID  string  `json:"CheckoutRequestID"`
	ExternalReference  string  `json:"ExternalReference"`
	MpesaReceiptNumber string  `json:"MpesaReceiptNumber"`
	Phone              string  `json:"Phone"`
	ResultCode         int     `json:"ResultCode"`
	ResultDesc         string  `json:"ResultDesc"`
	Status             string  `json:"Status"`
}

// Succeeded is the activation gate: both the numeric code and the textual
// status must agree before any money is credited.
func (r CallbackResponse) Succeeded() bool {
	return r.ResultCode == 0 && r.Status == "Success"
}

type STKPushRequest struct {
	SubscriptionID string
	Amount         int64
	Phone          string
	CustomerName   string
}

type STKPushResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Reference string `json:"reference,omitempty"`
}

// Service initiates pushes and absorbs provider callbacks. HandleCallback
// records the transaction before anything else; a failed settlement never
// loses the audit trail.
type Service interface {
	InitiateSTKPush(ctx context.Context, req STKPushRequest) (STKPushResponse, error)
	HandleCallback(ctx context.Context, payload CallbackPayload) error
}

var (
	ErrGatewayNotConfigured = errors.New("gateway_not_configured")
	ErrSTKPushFailed        = errors.New("stk_push_failed")
	ErrUnmatchedReference   = errors.New("unmatched_payment_reference")
)
