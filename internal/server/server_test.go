package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/mtandao/netbill/internal/billing/domain"
	billingservice "github.com/mtandao/netbill/internal/billing/service"
	catalogdomain "github.com/mtandao/netbill/internal/catalog/domain"
	catalogrepo "github.com/mtandao/netbill/internal/catalog/repository"
	"github.com/mtandao/netbill/internal/clock"
	"github.com/mtandao/netbill/internal/config"
	mikrotikdomain "github.com/mtandao/netbill/internal/mikrotik/domain"
	notifierdomain "github.com/mtandao/netbill/internal/notifier/domain"
	paymentdomain "github.com/mtandao/netbill/internal/payment/domain"
	paymentrepo "github.com/mtandao/netbill/internal/payment/repository"
	paymentservice "github.com/mtandao/netbill/internal/payment/service"
	subscriberdomain "github.com/mtandao/netbill/internal/subscriber/domain"
	subscriberrepo "github.com/mtandao/netbill/internal/subscriber/repository"
	subscriptiondomain "github.com/mtandao/netbill/internal/subscription/domain"
	subscriptionrepo "github.com/mtandao/netbill/internal/subscription/repository"
	subscriptionservice "github.com/mtandao/netbill/internal/subscription/service"
	"github.com/mtandao/netbill/pkg/keylock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type nopConnector struct{}

func (nopConnector) CreateSecret(context.Context, mikrotikdomain.Device, string, string, string) error {
	return nil
}
func (nopConnector) SetDisabled(context.Context, mikrotikdomain.Device, string, bool) error {
	return nil
}
func (nopConnector) UpdateProfile(context.Context, mikrotikdomain.Device, string, string) error {
	return nil
}

type nopSender struct{}

func (nopSender) Send(context.Context, notifierdomain.Company, string, string) error { return nil }

type testServer struct {
	engine *gin.Engine
	db     *gorm.DB

	subscriptions subscriptiondomain.Service
	billing       billingdomain.Service

	subscriber subscriberdomain.Subscriber
	pkg        catalogdomain.Package
	premium    catalogdomain.Package
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&subscriberdomain.Subscriber{},
		&subscriberdomain.Router{},
		&subscriberdomain.Company{},
		&catalogdomain.Package{},
		&billingdomain.LedgerEntry{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Gateway{},
		&paymentdomain.Transaction{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	ts := &testServer{db: db}

	router := subscriberdomain.Router{ID: node.Generate(), Name: "core-1", Address: "10.0.0.1", APIUsername: "api", APIPassword: "pw"}
	ts.subscriber = subscriberdomain.Subscriber{
		ID:       node.Generate(),
		FullName: "Kamau Njoroge",
		Phone:    "254733000004",
		Username: "knjoroge",
		Secret:   "pw",
		RouterID: router.ID,
	}
	company := subscriberdomain.Company{ID: node.Generate(), Name: "Mtandao Networks", SenderID: "MTANDAO", Active: true}
	ts.pkg = catalogdomain.Package{
		ID: node.Generate(), Name: "Basic 10M", Price: 1500,
		DownloadSpeed: "10M", UploadSpeed: "5M", RouterProfile: "profile-10m",
	}
	ts.premium = catalogdomain.Package{
		ID: node.Generate(), Name: "Premium 30M", Price: 3000,
		DownloadSpeed: "30M", UploadSpeed: "15M", RouterProfile: "profile-30m",
	}
	require.NoError(t, db.Create(&router).Error)
	require.NoError(t, db.Create(&ts.subscriber).Error)
	require.NoError(t, db.Create(&company).Error)
	require.NoError(t, db.Create(&ts.pkg).Error)
	require.NoError(t, db.Create(&ts.premium).Error)

	ts.billing = billingservice.NewService(billingservice.Params{Log: zap.NewNop(), GenID: node, Clock: fake})
	ts.subscriptions = subscriptionservice.New(subscriptionservice.Params{
		DB:             db,
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          fake,
		Policy:         config.NewStaticPolicyHolder(config.DefaultBillingPolicy()),
		Locks:          keylock.New(),
		Repo:           subscriptionrepo.Provide(),
		SubscriberRepo: subscriberrepo.Provide(),
		CatalogRepo:    catalogrepo.Provide(),
		Billing:        ts.billing,
		Connector:      nopConnector{},
		SMS:            nopSender{},
	})
	paymentSvc := paymentservice.New(paymentservice.Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         fake,
		Repo:          paymentrepo.Provide(),
		Billing:       ts.billing,
		Subscriptions: ts.subscriptions,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	NewServer(Params{
		Engine:          engine,
		Log:             zap.NewNop(),
		DB:              db,
		SubscriptionSvc: ts.subscriptions,
		PaymentSvc:      paymentSvc,
		PaymentRepo:     paymentrepo.Provide(),
		BillingSvc:      ts.billing,
		SubscriberRepo:  subscriberrepo.Provide(),
		CatalogRepo:     catalogrepo.Provide(),
	})
	ts.engine = engine
	return ts
}

func (ts *testServer) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func TestAdminCreateAndActivateFlow(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/admin/subscriptions", gin.H{
		"subscriber_id": ts.subscriber.ID.String(),
		"package_id":    ts.pkg.ID.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created subscriptiondomain.Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, subscriptiondomain.StatusPending, created.Status)

	w = ts.request(t, http.MethodPost, fmt.Sprintf("/api/admin/subscriptions/%s/activate", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var activated subscriptiondomain.Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &activated))
	require.Equal(t, subscriptiondomain.StatusActive, activated.Status)
	require.NotNil(t, activated.ExpiryAt)
}

func TestCreateSubscriptionValidation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/subscriptions", gin.H{"subscriber_id": ts.subscriber.ID.String()})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownSubscriptionIs404(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/api/subscriptions/123456789", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpgradePendingIs422(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/admin/subscriptions", gin.H{
		"subscriber_id": ts.subscriber.ID.String(),
		"package_id":    ts.pkg.ID.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created subscriptiondomain.Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = ts.request(t, http.MethodPost, fmt.Sprintf("/api/admin/subscriptions/%s/upgrade", created.ID), gin.H{
		"new_package_id": ts.premium.ID.String(),
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPaymentCallbackRepliesOK(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/admin/subscriptions", gin.H{
		"subscriber_id": ts.subscriber.ID.String(),
		"package_id":    ts.pkg.ID.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created subscriptiondomain.Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = ts.request(t, http.MethodPost, "/api/payments/callback", gin.H{
		"response": gin.H{
			"Amount":             1500,
			"ExternalReference":  created.ID.String(),
			"MpesaReceiptNumber": "SGR7TKQ2XM",
			"ResultCode":         0,
			"Status":             "Success",
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())

	sub, err := ts.subscriptions.GetByID(context.Background(), created.ID.String())
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.StatusActive, sub.Status)
}

func TestPaymentCallbackUnmatchedStillOK(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/payments/callback", gin.H{
		"response": gin.H{
			"Amount":             1500,
			"ExternalReference":  "999999999",
			"MpesaReceiptNumber": "SGR7TKQ2XM",
			"ResultCode":         0,
			"Status":             "Success",
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
}

func TestExtendExpiryPastIs422(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/admin/subscriptions", gin.H{
		"subscriber_id": ts.subscriber.ID.String(),
		"package_id":    ts.pkg.ID.String(),
		"activate_now":  true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created subscriptiondomain.Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = ts.request(t, http.MethodPost, fmt.Sprintf("/api/admin/subscriptions/%s/expiry", created.ID), gin.H{
		"expiry_at": "2020-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestListPackages(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/api/packages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Packages []catalogdomain.Package `json:"packages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Packages, 2)
	// Cheapest first.
	require.Equal(t, "Basic 10M", resp.Packages[0].Name)
}

func TestSubscriberLedgerEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/admin/subscriptions", gin.H{
		"subscriber_id": ts.subscriber.ID.String(),
		"package_id":    ts.pkg.ID.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.request(t, http.MethodGet, fmt.Sprintf("/api/subscribers/%s/ledger", ts.subscriber.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Balance int64                       `json:"balance"`
		Entries []billingdomain.LedgerEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(1500), resp.Balance)
	require.Len(t, resp.Entries, 1)
}
