// Package service talks to the STK push provider and absorbs its callbacks.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/mtandao/netbill/internal/billing/domain"
	"github.com/mtandao/netbill/internal/clock"
	"github.com/mtandao/netbill/internal/payment/domain"
	subscriptiondomain "github.com/mtandao/netbill/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	Billing       billingdomain.Service
	Subscriptions subscriptiondomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	billing       billingdomain.Service
	subscriptions subscriptiondomain.Service
	httpClient    *http.Client
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		billing:       p.Billing,
		subscriptions: p.Subscriptions,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

type stkPushRequest struct {
	Amount            int64  `json:"amount"`
	PhoneNumber       string `json:"phone_number"`
	ChannelID         string `json:"channel_id"`
	Provider          string `json:"provider"`
	ExternalReference string `json:"external_reference"`
	CustomerName      string `json:"customer_name"`
	CallbackURL       string `json:"callback_url"`
}

// InitiateSTKPush asks the provider to prompt the subscriber's phone. The
// subscription id rides along as external_reference so the callback can be
// correlated back.
func (s *Service) InitiateSTKPush(ctx context.Context, req domain.STKPushRequest) (domain.STKPushResponse, error) {
	gateway, err := s.repo.FindActiveGateway(ctx, s.db)
	if err != nil {
		return domain.STKPushResponse{}, err
	}
	if gateway == nil {
		return domain.STKPushResponse{}, domain.ErrGatewayNotConfigured
	}

	body, err := json.Marshal(stkPushRequest{
		Amount:            req.Amount,
		PhoneNumber:       req.Phone,
		ChannelID:         gateway.ChannelID,
		Provider:          gateway.Provider,
		ExternalReference: req.SubscriptionID,
		CustomerName:      req.CustomerName,
		CallbackURL:       gateway.CallbackURL,
	})
	if err != nil {
		return domain.STKPushResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gateway.APIURL, bytes.NewReader(body))
	if err != nil {
		return domain.STKPushResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+gateway.AuthToken)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return domain.STKPushResponse{}, fmt.Errorf("%w: %v", domain.ErrSTKPushFailed, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 300 {
		s.log.Warn("stk push rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("subscription_id", req.SubscriptionID),
			zap.ByteString("body", respBody),
		)
		return domain.STKPushResponse{}, fmt.Errorf("%w: status %d", domain.ErrSTKPushFailed, resp.StatusCode)
	}

	s.log.Info("stk push initiated",
		zap.String("subscription_id", req.SubscriptionID),
		zap.Int64("amount", req.Amount),
	)
	return domain.STKPushResponse{
		Success:   true,
		Status:    "QUEUED",
		Reference: req.SubscriptionID,
	}, nil
}

// HandleCallback processes one provider delivery. Order matters: the
// transaction is recorded first so every delivery, duplicates and failures
// included, leaves an audit row. A receipt already seen skips the ledger so
// a redelivery never credits twice. Settlement failures after the money is
// credited are logged and left to the settle job; the provider is never
// asked to retry a payment we already hold.
func (s *Service) HandleCallback(ctx context.Context, payload domain.CallbackPayload) error {
	resp := payload.Response

	alreadyCredited := false
	if resp.MpesaReceiptNumber != "" {
		existing, err := s.repo.FindTransactionByReceipt(ctx, s.db, resp.MpesaReceiptNumber)
		if err != nil {
			return err
		}
		alreadyCredited = existing != nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	txn := domain.Transaction{
		ID:                s.genID.Generate(),
		ExternalReference: resp.ExternalReference,
		Receipt:           resp.MpesaReceiptNumber,
		Status:            resp.Status,
		ResultCode:        resp.ResultCode,
		Amount:            int64(math.Round(resp.Amount)),
		Phone:             resp.Phone,
		RawPayload:        raw,
		OccurredAt:        now,
		CreatedAt:         now,
	}
	if err := s.repo.InsertTransaction(ctx, s.db, &txn); err != nil {
		return err
	}

	if !resp.Succeeded() {
		s.log.Info("payment callback not successful",
			zap.String("external_reference", resp.ExternalReference),
			zap.Int("result_code", resp.ResultCode),
			zap.String("status", resp.Status),
		)
		return nil
	}

	if alreadyCredited {
		s.log.Info("duplicate callback recorded, ledger untouched",
			zap.String("receipt", resp.MpesaReceiptNumber),
			zap.String("external_reference", resp.ExternalReference),
		)
		return nil
	}

	sub, err := s.subscriptions.GetByID(ctx, resp.ExternalReference)
	if err != nil {
		s.log.Error("paid callback does not match any subscription",
			zap.String("external_reference", resp.ExternalReference),
			zap.String("receipt", resp.MpesaReceiptNumber),
		)
		return fmt.Errorf("%w: %s", domain.ErrUnmatchedReference, resp.ExternalReference)
	}

	memo := fmt.Sprintf("mpesa receipt %s", resp.MpesaReceiptNumber)
	if err := s.billing.RecordPayment(ctx, s.db, sub.SubscriberID, txn.Amount, resp.MpesaReceiptNumber, memo); err != nil {
		return err
	}

	if _, err := s.subscriptions.MarkPaid(ctx, resp.ExternalReference, resp.MpesaReceiptNumber, false); err != nil {
		s.log.Warn("mark paid failed after payment recorded",
			zap.String("subscription_id", resp.ExternalReference),
			zap.Error(err),
		)
	}

	if err := s.subscriptions.SettleSubscriber(ctx, sub.SubscriberID); err != nil {
		// Money is in the ledger; the settle job will retry activation.
		s.log.Warn("settlement failed, deferring to settle job",
			zap.String("subscriber_id", sub.SubscriberID.String()),
			zap.Error(err),
		)
	}
	return nil
}
