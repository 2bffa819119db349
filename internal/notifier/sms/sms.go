// Package sms sends text messages through an HTTP SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mtandao/netbill/internal/config"
	notifierdomain "github.com/mtandao/netbill/internal/notifier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log *zap.Logger
	Cfg config.Config
}

type Sender struct {
	log        *zap.Logger
	gatewayURL string
	httpClient *http.Client
}

func New(p Params) notifierdomain.Sender {
	return &Sender{
		log:        p.Log.Named("notifier.sms"),
		gatewayURL: p.Cfg.SMSGatewayURL,
		httpClient: &http.Client{Timeout: p.Cfg.SMSTimeout},
	}
}

type sendRequest struct {
	SenderID string `json:"sender_id"`
	Phone    string `json:"phone"`
	Message  string `json:"message"`
}

func (s *Sender) Send(ctx context.Context, company notifierdomain.Company, phone, message string) error {
	if strings.TrimSpace(s.gatewayURL) == "" {
		// No gateway configured (dev / test environments): log and succeed.
		s.log.Info("sms gateway not configured, dropping message",
			zap.String("phone", phone),
			zap.String("message", message),
		)
		return nil
	}

	body, err := json.Marshal(sendRequest{
		SenderID: company.SenderID,
		Phone:    phone,
		Message:  message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if company.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+company.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", notifierdomain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", notifierdomain.ErrRejected, resp.StatusCode)
	}

	s.log.Info("sms sent", zap.String("phone", phone), zap.String("sender", company.SenderID))
	return nil
}
