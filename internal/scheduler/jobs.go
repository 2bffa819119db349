package scheduler

import (
	"context"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/mtandao/netbill/internal/subscription/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SuspendExpiredJob finds ACTIVE subscriptions past expiry and sweeps their
// subscribers in parallel. One batch per run: a lapsed subscriber whose
// ledger is settled stays ACTIVE and would be fetched forever if the job
// looped until empty.
func (s *Scheduler) SuspendExpiredJob(ctx context.Context) error {
	now := s.clock.Now()
	expired, err := s.repo.FindExpiredActive(ctx, s.db, now, sweepBatchSize)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	subscribers := distinctSubscribers(expired)
	s.log.Info("sweeping lapsed subscriptions",
		zap.Int("subscriptions", len(expired)),
		zap.Int("subscribers", len(subscribers)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.policy.Get().SweepWorkers)

	for _, subscriberID := range subscribers {
		g.Go(func() error {
			suspended, err := s.subscriptionSvc.SweepSubscriber(gctx, subscriberID)
			if err != nil {
				s.log.Warn("sweep failed for subscriber",
					zap.String("subscriber_id", subscriberID.String()),
					zap.Error(err),
				)
				return err
			}
			if s.metrics != nil {
				for i := 0; i < suspended; i++ {
					s.metrics.IncSuspended()
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// SettleUnpaidJob retries settlement for subscribers who still hold
// unsettled subscriptions. It catches payments whose callback-time
// settlement failed, typically because the router was unreachable.
func (s *Scheduler) SettleUnpaidJob(ctx context.Context) error {
	owed, err := s.repo.FindSubscribersOwed(ctx, s.db, sweepBatchSize)
	if err != nil {
		return err
	}
	if len(owed) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.policy.Get().SweepWorkers)

	for _, subscriberID := range owed {
		g.Go(func() error {
			if err := s.subscriptionSvc.SettleSubscriber(gctx, subscriberID); err != nil {
				s.log.Warn("settlement retry failed",
					zap.String("subscriber_id", subscriberID.String()),
					zap.Error(err),
				)
				return err
			}
			if s.metrics != nil {
				s.metrics.IncActivated()
			}
			return nil
		})
	}
	return g.Wait()
}

func distinctSubscribers(subs []subscriptiondomain.Subscription) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(subs))
	out := make([]snowflake.ID, 0, len(subs))
	for _, sub := range subs {
		if _, ok := seen[sub.SubscriberID]; ok {
			continue
		}
		seen[sub.SubscriberID] = struct{}{}
		out = append(out, sub.SubscriberID)
	}
	return out
}
