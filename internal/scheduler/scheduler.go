// Package scheduler drives the reconciliation loop: suspending lapsed
// debtors and re-driving settlement for subscribers whose payment arrived
// but whose activation failed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mtandao/netbill/internal/clock"
	"github.com/mtandao/netbill/internal/config"
	obsmetrics "github.com/mtandao/netbill/internal/observability/metrics"
	subscriptiondomain "github.com/mtandao/netbill/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchSize = 500

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Policy          *config.PolicyHolder
	SubscriptionSvc subscriptiondomain.Service
	Repo            subscriptiondomain.Repository
	Metrics         *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	policy          *config.PolicyHolder
	subscriptionSvc subscriptiondomain.Service
	repo            subscriptiondomain.Repository
	metrics         *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Policy == nil || p.SubscriptionSvc == nil || p.Repo == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		clock:           p.Clock,
		policy:          p.Policy,
		subscriptionSvc: p.SubscriptionSvc,
		repo:            p.Repo,
		metrics:         p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if s.metrics != nil {
		s.metrics.IncJobRun(name)
	}
	err := fn(ctx)
	if s.metrics != nil {
		s.metrics.ObserveJobDuration(name, time.Since(start))
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncJobError(name)
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	policy := s.policy.Get()
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"suspend_expired", s.SuspendExpiredJob},
		{"settle_unpaid", s.SettleUnpaidJob},
	}

	for _, job := range jobs {
		if !isJobEnabled(policy.EnabledJobs, job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, policy.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.policy.Get().SweepInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		ticker.Reset(s.policy.Get().SweepInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// If EnabledJobs is empty, all jobs run.
func isJobEnabled(enabled []string, jobName string) bool {
	if len(enabled) == 0 {
		return true
	}
	for _, name := range enabled {
		if strings.EqualFold(name, jobName) {
			return true
		}
	}
	return false
}
