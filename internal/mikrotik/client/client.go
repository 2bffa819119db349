// Package client implements the connector over the RouterOS binary API.
// Every call dials, logs in, runs its commands and disconnects; the router
// offers no reliable long-lived session.
package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-routeros/routeros/v3"
	"github.com/mtandao/netbill/internal/config"
	mikrotikdomain "github.com/mtandao/netbill/internal/mikrotik/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log *zap.Logger
	Cfg config.Config
}

type Client struct {
	log     *zap.Logger
	timeout time.Duration
	port    string
}

func New(p Params) mikrotikdomain.Connector {
	return &Client{
		log:     p.Log.Named("mikrotik.client"),
		timeout: p.Cfg.RouterConnTimeout,
		port:    p.Cfg.RouterAPIPort,
	}
}

func (c *Client) CreateSecret(ctx context.Context, device mikrotikdomain.Device, username, secret, profile string) error {
	return c.withSession(ctx, device, func(api *routeros.Client) error {
		_, err := api.Run(
			"/ppp/secret/add",
			"=name="+username,
			"=password="+secret,
			"=service=pppoe",
			"=profile="+profile,
		)
		if err != nil {
			return fmt.Errorf("%w: add secret %s: %v", mikrotikdomain.ErrCommandFailed, username, err)
		}
		c.log.Info("pppoe secret created",
			zap.String("device", device.Address),
			zap.String("username", username),
			zap.String("profile", profile),
		)
		return nil
	})
}

func (c *Client) SetDisabled(ctx context.Context, device mikrotikdomain.Device, username string, disabled bool) error {
	return c.withSession(ctx, device, func(api *routeros.Client) error {
		secretID, err := c.lookupSecretID(api, username)
		if err != nil {
			return err
		}
		value := "no"
		if disabled {
			value = "yes"
		}
		if _, err := api.Run("/ppp/secret/set", "=.id="+secretID, "=disabled="+value); err != nil {
			return fmt.Errorf("%w: set disabled=%s for %s: %v", mikrotikdomain.ErrCommandFailed, value, username, err)
		}
		c.log.Info("pppoe secret toggled",
			zap.String("device", device.Address),
			zap.String("username", username),
			zap.Bool("disabled", disabled),
		)
		return nil
	})
}

func (c *Client) UpdateProfile(ctx context.Context, device mikrotikdomain.Device, username, profile string) error {
	return c.withSession(ctx, device, func(api *routeros.Client) error {
		secretID, err := c.lookupSecretID(api, username)
		if err != nil {
			return err
		}
		if _, err := api.Run("/ppp/secret/set", "=.id="+secretID, "=profile="+profile); err != nil {
			return fmt.Errorf("%w: set profile=%s for %s: %v", mikrotikdomain.ErrCommandFailed, profile, username, err)
		}
		c.log.Info("pppoe profile updated",
			zap.String("device", device.Address),
			zap.String("username", username),
			zap.String("profile", profile),
		)
		return nil
	})
}

// withSession bounds the whole connect/login/command/disconnect cycle by the
// configured timeout so a wedged router cannot stall a lifecycle transition
// indefinitely.
func (c *Client) withSession(ctx context.Context, device mikrotikdomain.Device, fn func(*routeros.Client) error) error {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	api, err := routeros.DialTimeout(c.address(device), device.Username, device.Password, timeout)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", mikrotikdomain.ErrDeviceUnavailable, device.Address, err)
	}
	defer api.Close()

	return fn(api)
}

func (c *Client) lookupSecretID(api *routeros.Client, username string) (string, error) {
	reply, err := api.Run("/ppp/secret/print", "?name="+username)
	if err != nil {
		return "", fmt.Errorf("%w: print secrets: %v", mikrotikdomain.ErrCommandFailed, err)
	}
	for _, sentence := range reply.Re {
		if sentence.Map["name"] == username {
			return sentence.Map[".id"], nil
		}
	}
	return "", fmt.Errorf("%w: %s", mikrotikdomain.ErrSecretNotFound, username)
}

func (c *Client) address(device mikrotikdomain.Device) string {
	if strings.Contains(device.Address, ":") {
		return device.Address
	}
	return device.Address + ":" + c.port
}
