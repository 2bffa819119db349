// Package domain defines the best-effort SMS capability. Callers treat
// failures as non-fatal: they log and move on, never abort a transition.
package domain

import (
	"context"
	"errors"
)

// Company is the sender identity, resolved from the active ISP company row.
type Company struct {
	Name     string
	SenderID string
	APIKey   string
}

type Sender interface {
	Send(ctx context.Context, company Company, phone, message string) error
}

var (
	ErrGatewayUnavailable = errors.New("sms_gateway_unavailable")
	ErrRejected           = errors.New("sms_rejected")
)
