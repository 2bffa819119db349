// Package domain defines the capability surface the lifecycle engine uses
// to grant and revoke PPPoE access on a router. The connection is
// session-based per call; no state survives between calls.
package domain

import (
	"context"
	"errors"
)

// Device is the dial target, resolved from a subscriber's assigned router.
type Device struct {
	Address  string
	Username string
	Password string
}

type Connector interface {
	// CreateSecret provisions a new PPPoE credential with the given profile.
	CreateSecret(ctx context.Context, device Device, username, secret, profile string) error

	// SetDisabled flips the disabled flag on an existing credential.
	SetDisabled(ctx context.Context, device Device, username string, disabled bool) error

	// UpdateProfile points an existing credential at a new profile.
	UpdateProfile(ctx context.Context, device Device, username, profile string) error
}

var (
	ErrDeviceUnavailable = errors.New("device_unavailable")
	ErrSecretNotFound    = errors.New("secret_not_found_on_device")
	ErrCommandFailed     = errors.New("device_command_failed")
)
