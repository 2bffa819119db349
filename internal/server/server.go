// Package server exposes the HTTP surface: subscriber self-service, the
// operator API and the payment callback endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mtandao/netbill/internal/billing"
	billingdomain "github.com/mtandao/netbill/internal/billing/domain"
	"github.com/mtandao/netbill/internal/catalog"
	catalogdomain "github.com/mtandao/netbill/internal/catalog/domain"
	"github.com/mtandao/netbill/internal/clock"
	"github.com/mtandao/netbill/internal/config"
	"github.com/mtandao/netbill/internal/mikrotik"
	"github.com/mtandao/netbill/internal/notifier"
	"github.com/mtandao/netbill/internal/observability"
	obslogger "github.com/mtandao/netbill/internal/observability/logger"
	obsmetrics "github.com/mtandao/netbill/internal/observability/metrics"
	"github.com/mtandao/netbill/internal/payment"
	paymentdomain "github.com/mtandao/netbill/internal/payment/domain"
	"github.com/mtandao/netbill/internal/scheduler"
	"github.com/mtandao/netbill/internal/subscriber"
	subscriberdomain "github.com/mtandao/netbill/internal/subscriber/domain"
	"github.com/mtandao/netbill/internal/subscription"
	subscriptiondomain "github.com/mtandao/netbill/internal/subscription/domain"
	"github.com/mtandao/netbill/pkg/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	clock.Module,
	db.Module,
	subscriber.Module,
	catalog.Module,
	billing.Module,
	mikrotik.Module,
	notifier.Module,
	subscription.Module,
	payment.Module,
	scheduler.Module,
	fx.Provide(newEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type engineParams struct {
	fx.In

	Log         *zap.Logger
	Registry    *prometheus.Registry
	HTTPMetrics *obsmetrics.HTTPMetrics
}

func newEngine(p engineParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(p.Log))
	r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})))

	return r
}

type Params struct {
	fx.In

	Engine          *gin.Engine
	Log             *zap.Logger
	DB              *gorm.DB
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	PaymentRepo     paymentdomain.Repository
	BillingSvc      billingdomain.Service
	SubscriberRepo  subscriberdomain.Repository
	CatalogRepo     catalogdomain.Repository
}

type Server struct {
	engine          *gin.Engine
	log             *zap.Logger
	db              *gorm.DB
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	paymentRepo     paymentdomain.Repository
	billingSvc      billingdomain.Service
	subscriberRepo  subscriberdomain.Repository
	catalogRepo     catalogdomain.Repository
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:          p.Engine,
		log:             p.Log.Named("server"),
		db:              p.DB,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		paymentRepo:     p.PaymentRepo,
		billingSvc:      p.BillingSvc,
		subscriberRepo:  p.SubscriberRepo,
		catalogRepo:     p.CatalogRepo,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	api.GET("/packages", s.listPackages)

	api.POST("/subscriptions", s.createSubscription)
	api.GET("/subscriptions", s.listSubscriptions)
	api.GET("/subscriptions/:id", s.getSubscription)

	api.GET("/subscribers/:id", s.getSubscriberDetails)
	api.GET("/subscribers/:id/ledger", s.getSubscriberLedger)

	api.POST("/payments/callback", s.paymentCallback)
	api.GET("/payments/transactions", s.listTransactions)

	admin := api.Group("/admin")
	admin.POST("/subscriptions", s.adminCreateSubscription)
	admin.POST("/subscriptions/:id/activate", s.activateSubscription)
	admin.POST("/subscriptions/:id/upgrade", s.upgradeSubscription)
	admin.POST("/subscriptions/:id/expiry", s.extendExpiry)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
