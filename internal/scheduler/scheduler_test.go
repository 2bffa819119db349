package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/mtandao/netbill/internal/billing/domain"
	billingservice "github.com/mtandao/netbill/internal/billing/service"
	catalogdomain "github.com/mtandao/netbill/internal/catalog/domain"
	catalogrepo "github.com/mtandao/netbill/internal/catalog/repository"
	"github.com/mtandao/netbill/internal/clock"
	"github.com/mtandao/netbill/internal/config"
	mikrotikdomain "github.com/mtandao/netbill/internal/mikrotik/domain"
	notifierdomain "github.com/mtandao/netbill/internal/notifier/domain"
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

type env struct {
	scheduler     *Scheduler
	subscriptions subscriptiondomain.Service
	billing       billingdomain.Service
	db            *gorm.DB
	clock         *clock.FakeClock

	subscriber subscriberdomain.Subscriber
	pkg        catalogdomain.Package
}

func newEnv(t *testing.T, policy config.BillingPolicy) *env {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&subscriberdomain.Subscriber{},
		&subscriberdomain.Router{},
		&subscriberdomain.Company{},
		&catalogdomain.Package{},
		&billingdomain.LedgerEntry{},
		&subscriptiondomain.Subscription{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	holder := config.NewStaticPolicyHolder(policy)
	repo := subscriptionrepo.Provide()

	e := &env{db: db, clock: fake}

	router := subscriberdomain.Router{ID: node.Generate(), Name: "core-1", Address: "10.0.0.1", APIUsername: "api", APIPassword: "pw"}
	e.subscriber = subscriberdomain.Subscriber{
		ID:       node.Generate(),
		FullName: "Amina Hassan",
		Phone:    "254722000003",
		Username: "ahassan",
		Secret:   "pw",
		RouterID: router.ID,
	}
	company := subscriberdomain.Company{ID: node.Generate(), Name: "Mtandao Networks", SenderID: "MTANDAO", Active: true}
	e.pkg = catalogdomain.Package{
		ID: node.Generate(), Name: "Basic 10M", Price: 1500,
		DownloadSpeed: "10M", UploadSpeed: "5M", RouterProfile: "profile-10m",
	}
	require.NoError(t, db.Create(&router).Error)
	require.NoError(t, db.Create(&e.subscriber).Error)
	require.NoError(t, db.Create(&company).Error)
	require.NoError(t, db.Create(&e.pkg).Error)

	e.billing = billingservice.NewService(billingservice.Params{Log: zap.NewNop(), GenID: node, Clock: fake})
	e.subscriptions = subscriptionservice.New(subscriptionservice.Params{
		DB:             db,
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          fake,
		Policy:         holder,
		Locks:          keylock.New(),
		Repo:           repo,
		SubscriberRepo: subscriberrepo.Provide(),
		CatalogRepo:    catalogrepo.Provide(),
		Billing:        e.billing,
		Connector:      nopConnector{},
		SMS:            nopSender{},
	})

	e.scheduler, err = New(Params{
		DB:              db,
		Log:             zap.NewNop(),
		Clock:           fake,
		Policy:          holder,
		SubscriptionSvc: e.subscriptions,
		Repo:            repo,
	})
	require.NoError(t, err)
	return e
}

func (e *env) activeSubscription(t *testing.T) subscriptiondomain.Subscription {
	t.Helper()
	ctx := context.Background()
	sub, err := e.subscriptions.CreatePending(ctx, subscriptiondomain.CreateRequest{
		SubscriberID: e.subscriber.ID.String(),
		PackageID:    e.pkg.ID.String(),
	})
	require.NoError(t, err)
	require.NoError(t, e.billing.RecordPayment(ctx, e.db, e.subscriber.ID, e.pkg.Price, "RCPT-"+sub.ID.String(), ""))
	require.NoError(t, e.subscriptions.SettleSubscriber(ctx, e.subscriber.ID))
	return e.reload(t, sub.ID)
}

func (e *env) reload(t *testing.T, id snowflake.ID) subscriptiondomain.Subscription {
	t.Helper()
	sub, err := e.subscriptions.GetByID(context.Background(), id.String())
	require.NoError(t, err)
	return sub
}

func TestSuspendExpiredJobSweepsLapsedDebtor(t *testing.T) {
	e := newEnv(t, config.DefaultBillingPolicy())
	sub := e.activeSubscription(t)

	// A month passes and a fresh period is owed.
	e.clock.Advance(32 * 24 * time.Hour)
	_, err := e.subscriptions.CreatePending(context.Background(), subscriptiondomain.CreateRequest{
		SubscriberID: e.subscriber.ID.String(),
		PackageID:    e.pkg.ID.String(),
	})
	require.NoError(t, err)

	require.NoError(t, e.scheduler.RunOnce(context.Background()))
	require.Equal(t, subscriptiondomain.StatusExpired, e.reload(t, sub.ID).Status)
}

func TestSuspendExpiredJobLeavesSettledActive(t *testing.T) {
	e := newEnv(t, config.DefaultBillingPolicy())
	sub := e.activeSubscription(t)

	e.clock.Advance(32 * 24 * time.Hour)
	require.NoError(t, e.scheduler.RunOnce(context.Background()))
	require.Equal(t, subscriptiondomain.StatusActive, e.reload(t, sub.ID).Status)
}

func TestSettleUnpaidJobRetriesActivation(t *testing.T) {
	e := newEnv(t, config.DefaultBillingPolicy())
	ctx := context.Background()

	// A payment landed in the ledger but activation never happened, as if
	// the router was down during the callback.
	sub, err := e.subscriptions.CreatePending(ctx, subscriptiondomain.CreateRequest{
		SubscriberID: e.subscriber.ID.String(),
		PackageID:    e.pkg.ID.String(),
	})
	require.NoError(t, err)
	require.NoError(t, e.billing.RecordPayment(ctx, e.db, e.subscriber.ID, e.pkg.Price, "RCPT-RETRY", ""))

	require.NoError(t, e.scheduler.RunOnce(ctx))
	require.Equal(t, subscriptiondomain.StatusActive, e.reload(t, sub.ID).Status)
}

func TestSettleUnpaidJobLeavesUnderpaid(t *testing.T) {
	e := newEnv(t, config.DefaultBillingPolicy())
	ctx := context.Background()

	sub, err := e.subscriptions.CreatePending(ctx, subscriptiondomain.CreateRequest{
		SubscriberID: e.subscriber.ID.String(),
		PackageID:    e.pkg.ID.String(),
	})
	require.NoError(t, err)
	require.NoError(t, e.billing.RecordPayment(ctx, e.db, e.subscriber.ID, 500, "RCPT-PART", ""))

	require.NoError(t, e.scheduler.RunOnce(ctx))
	require.Equal(t, subscriptiondomain.StatusPending, e.reload(t, sub.ID).Status)
}

func TestDisabledJobDoesNotRun(t *testing.T) {
	policy := config.DefaultBillingPolicy()
	policy.EnabledJobs = []string{"settle_unpaid"}
	e := newEnv(t, policy)
	sub := e.activeSubscription(t)

	e.clock.Advance(32 * 24 * time.Hour)
	_, err := e.subscriptions.CreatePending(context.Background(), subscriptiondomain.CreateRequest{
		SubscriberID: e.subscriber.ID.String(),
		PackageID:    e.pkg.ID.String(),
	})
	require.NoError(t, err)

	require.NoError(t, e.scheduler.RunOnce(context.Background()))
	// suspend_expired is off, so the lapsed subscription survives.
	require.Equal(t, subscriptiondomain.StatusActive, e.reload(t, sub.ID).Status)
}

func TestJobEnabledMatchingIsCaseInsensitive(t *testing.T) {
	require.True(t, isJobEnabled(nil, "suspend_expired"))
	require.True(t, isJobEnabled([]string{"Suspend_Expired"}, "suspend_expired"))
	require.False(t, isJobEnabled([]string{"settle_unpaid"}, "suspend_expired"))
}
