// Package service implements the subscription lifecycle engine: creation,
// payment settlement, device provisioning and the expiry sweep.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/mtandao/netbill/internal/billing/domain"
	catalogdomain "github.com/mtandao/netbill/internal/catalog/domain"
	"github.com/mtandao/netbill/internal/clock"
	"github.com/mtandao/netbill/internal/config"
	mikrotikdomain "github.com/mtandao/netbill/internal/mikrotik/domain"
	notifierdomain "github.com/mtandao/netbill/internal/notifier/domain"
	subscriberdomain "github.com/mtandao/netbill/internal/subscriber/domain"
	"github.com/mtandao/netbill/internal/subscription/domain"
	"github.com/mtandao/netbill/pkg/db/pagination"
	"github.com/mtandao/netbill/pkg/keylock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Policy         *config.PolicyHolder
	Locks          *keylock.KeyLock
	Repo           domain.Repository
	SubscriberRepo subscriberdomain.Repository
	CatalogRepo    catalogdomain.Repository
	Billing        billingdomain.Service
	Connector      mikrotikdomain.Connector
	SMS            notifierdomain.Sender
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	policy         *config.PolicyHolder
	locks          *keylock.KeyLock
	repo           domain.Repository
	subscriberRepo subscriberdomain.Repository
	catalogRepo    catalogdomain.Repository
	billing        billingdomain.Service
	connector      mikrotikdomain.Connector
	sms            notifierdomain.Sender
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("subscription.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		policy:         p.Policy,
		locks:          p.Locks,
		repo:           p.Repo,
		subscriberRepo: p.SubscriberRepo,
		catalogRepo:    p.CatalogRepo,
		billing:        p.Billing,
		connector:      p.Connector,
		sms:            p.SMS,
	}
}

// CreatePending records a package selection. The PENDING subscription and the
// ledger charge commit together; neither exists without the other.
func (s *Service) CreatePending(ctx context.Context, req domain.CreateRequest) (domain.Subscription, error) {
	subscriberID, err := parseID(req.SubscriberID)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidSubscriber
	}
	packageID, err := parseID(req.PackageID)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidPackage
	}

	var created domain.Subscription
	err = s.locks.Do(subscriberID.String(), func() error {
		sub, pkg, err := s.resolve(ctx, subscriberID, packageID)
		if err != nil {
			return err
		}

		created = domain.Subscription{
			ID:           s.genID.Generate(),
			SubscriberID: sub.ID,
			PackageID:    pkg.ID,
			RouterID:     sub.RouterID,
			Status:       domain.StatusPending,
			CreatedAt:    s.clock.Now(),
			UpdatedAt:    s.clock.Now(),
		}

		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.Insert(ctx, tx, &created); err != nil {
				return err
			}
			memo := fmt.Sprintf("subscription charge for package %s", pkg.Name)
			return s.billing.Charge(ctx, tx, sub.ID, pkg.Price,
				billingdomain.SourceTypeSubscriptionCharge, created.ID.String(), memo)
		})
	})
	if err != nil {
		return domain.Subscription{}, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", created.ID.String()),
		zap.String("subscriber_id", subscriberID.String()),
		zap.String("package_id", packageID.String()),
	)
	return created, nil
}

// CreateByAdmin is the operator path: create, charge and optionally activate
// in one call. Activation here goes through the same device flow as the
// payment path.
func (s *Service) CreateByAdmin(ctx context.Context, req domain.AdminCreateRequest) (domain.Subscription, error) {
	created, err := s.CreatePending(ctx, domain.CreateRequest{
		SubscriberID: req.SubscriberID,
		PackageID:    req.PackageID,
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	if !req.ActivateNow {
		return created, nil
	}
	return s.Activate(ctx, created.ID.String())
}

func (s *Service) MarkPaid(ctx context.Context, subscriptionID, receipt string, autoActivate bool) (domain.Subscription, error) {
	id, err := parseID(subscriptionID)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidSubscription
	}

	var result domain.Subscription
	err = s.withSubscriptionLock(ctx, id, func(sub *domain.Subscription) error {
		switch sub.Status {
		case domain.StatusPending:
			sub.Status = domain.StatusPaid
			sub.PaymentReference = &receipt
		case domain.StatusExpired:
			// Payment against a lapsed subscription: attach the receipt but
			// stay EXPIRED; settlement decides when access comes back.
			if sub.PaymentReference == nil {
				sub.PaymentReference = &receipt
			}
		case domain.StatusPaid, domain.StatusActive:
			// Redelivered confirmation; keep the first receipt.
			result = *sub
			return nil
		default:
			return fmt.Errorf("%w: cannot mark %s paid", domain.ErrInvalidTransition, sub.Status)
		}

		sub.UpdatedAt = s.clock.Now()
		if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.repo.Update(ctx, tx, sub)
		}); err != nil {
			return err
		}

		if autoActivate {
			return s.activateLocked(ctx, sub, &result)
		}
		result = *sub
		return nil
	})
	return result, err
}

func (s *Service) Activate(ctx context.Context, subscriptionID string) (domain.Subscription, error) {
	id, err := parseID(subscriptionID)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidSubscription
	}

	var result domain.Subscription
	err = s.withSubscriptionLock(ctx, id, func(sub *domain.Subscription) error {
		return s.activateLocked(ctx, sub, &result)
	})
	return result, err
}

// activateLocked runs the activation state machine for one subscription. The
// caller holds the subscriber's lock. ACTIVE is a no-op; EXPIRED reactivates;
// PENDING and PAID provision a fresh period.
func (s *Service) activateLocked(ctx context.Context, sub *domain.Subscription, out *domain.Subscription) error {
	switch sub.Status {
	case domain.StatusActive:
		*out = *sub
		return nil
	case domain.StatusExpired:
		if err := s.reactivate(ctx, sub); err != nil {
			return err
		}
	case domain.StatusPending, domain.StatusPaid:
		if err := s.activateFresh(ctx, sub); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: cannot activate %s", domain.ErrInvalidTransition, sub.Status)
	}
	*out = *sub
	s.notifyActivation(ctx, *sub)
	return nil
}

// activateFresh provisions the PPPoE secret and starts a new billing period.
// The device call runs inside the transaction so a device failure rolls the
// status change back.
func (s *Service) activateFresh(ctx context.Context, sub *domain.Subscription) error {
	subscriber, device, pkg, err := s.resolveDevice(ctx, sub)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	expiry := now.AddDate(0, s.policy.Get().BillingPeriodMonths, 0)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub.Status = domain.StatusActive
		sub.StartAt = &now
		sub.ExpiryAt = &expiry
		sub.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		if err := s.connector.CreateSecret(ctx, device, subscriber.Username, subscriber.Secret, pkg.RouterProfile); err != nil {
			return fmt.Errorf("provision %s: %w", subscriber.Username, err)
		}
		return nil
	})
}

// reactivate re-enables an EXPIRED subscription's existing secret and starts
// a fresh billing period from now; the start time moves with it.
func (s *Service) reactivate(ctx context.Context, sub *domain.Subscription) error {
	subscriber, device, _, err := s.resolveDevice(ctx, sub)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	expiry := now.AddDate(0, s.policy.Get().BillingPeriodMonths, 0)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub.Status = domain.StatusActive
		sub.StartAt = &now
		sub.ExpiryAt = &expiry
		sub.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		if err := s.connector.SetDisabled(ctx, device, subscriber.Username, false); err != nil {
			return fmt.Errorf("re-enable %s: %w", subscriber.Username, err)
		}
		return nil
	})
}

func (s *Service) UpgradePackage(ctx context.Context, req domain.UpgradeRequest) (domain.Subscription, error) {
	id, err := parseID(req.SubscriptionID)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidSubscription
	}
	newPackageID, err := parseID(req.NewPackageID)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidPackage
	}

	var result domain.Subscription
	err = s.withSubscriptionLock(ctx, id, func(sub *domain.Subscription) error {
		if sub.Status != domain.StatusActive {
			return fmt.Errorf("%w: cannot upgrade %s", domain.ErrInvalidTransition, sub.Status)
		}

		newPkg, err := s.catalogRepo.FindByID(ctx, s.db, newPackageID)
		if err != nil {
			return err
		}
		if newPkg == nil {
			return catalogdomain.ErrPackageNotFound
		}

		subscriber, device, _, err := s.resolveDevice(ctx, sub)
		if err != nil {
			return err
		}

		if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sub.PackageID = newPkg.ID
			sub.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, sub); err != nil {
				return err
			}
			memo := fmt.Sprintf("upgrade charge for package %s", newPkg.Name)
			if err := s.billing.Charge(ctx, tx, sub.SubscriberID, newPkg.Price,
				billingdomain.SourceTypeUpgradeCharge, sub.ID.String(), memo); err != nil {
				return err
			}
			if err := s.connector.UpdateProfile(ctx, device, subscriber.Username, newPkg.RouterProfile); err != nil {
				return fmt.Errorf("reprofile %s: %w", subscriber.Username, err)
			}
			return nil
		}); err != nil {
			return err
		}

		result = *sub
		s.notify(ctx, subscriber.Phone, notifierdomain.UpgradeMessage(newPkg.Name))
		return nil
	})
	return result, err
}

func (s *Service) ExtendExpiry(ctx context.Context, subscriptionID string, newExpiry time.Time) (domain.Subscription, error) {
	id, err := parseID(subscriptionID)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidSubscription
	}
	if !newExpiry.After(s.clock.Now()) {
		return domain.Subscription{}, domain.ErrExpiryInPast
	}

	var result domain.Subscription
	err = s.withSubscriptionLock(ctx, id, func(sub *domain.Subscription) error {
		switch sub.Status {
		case domain.StatusActive:
			return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				sub.ExpiryAt = &newExpiry
				sub.UpdatedAt = s.clock.Now()
				if err := s.repo.Update(ctx, tx, sub); err != nil {
					return err
				}
				result = *sub
				return nil
			})
		case domain.StatusExpired:
			subscriber, device, _, err := s.resolveDevice(ctx, sub)
			if err != nil {
				return err
			}
			if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				now := s.clock.Now()
				sub.Status = domain.StatusActive
				sub.ExpiryAt = &newExpiry
				sub.UpdatedAt = now
				if err := s.repo.Update(ctx, tx, sub); err != nil {
					return err
				}
				if err := s.connector.SetDisabled(ctx, device, subscriber.Username, false); err != nil {
					return fmt.Errorf("re-enable %s: %w", subscriber.Username, err)
				}
				return nil
			}); err != nil {
				return err
			}
			result = *sub
			s.notify(ctx, subscriber.Phone, notifierdomain.RestorationMessage())
			return nil
		default:
			return fmt.Errorf("%w: cannot extend %s", domain.ErrInvalidTransition, sub.Status)
		}
	})
	return result, err
}

// SettleSubscriber applies available credit to the subscriber's unsettled
// subscriptions, oldest first. The balance is re-read on every iteration so
// a subscription is only settled while the ledger is at or below zero; the
// walk stops at the first one the credit cannot cover.
func (s *Service) SettleSubscriber(ctx context.Context, subscriberID snowflake.ID) error {
	return s.locks.Do(subscriberID.String(), func() error {
		subs, err := s.repo.FindUnsettledBySubscriber(ctx, s.db, subscriberID)
		if err != nil {
			return err
		}

		for i := range subs {
			if err := ctx.Err(); err != nil {
				return err
			}

			balance, err := s.billing.Balance(ctx, s.db, subscriberID)
			if err != nil {
				return err
			}
			if balance > 0 {
				return nil
			}

			sub := &subs[i]
			var settled domain.Subscription
			if err := s.activateLocked(ctx, sub, &settled); err != nil {
				return fmt.Errorf("settle subscription %s: %w", sub.ID, err)
			}
			s.log.Info("subscription settled",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("subscriber_id", subscriberID.String()),
				zap.Int64("balance_before", balance),
			)
		}
		return nil
	})
}

// SweepSubscriber suspends the subscriber's lapsed ACTIVE subscriptions.
// A subscription past expiry with a settled ledger is left ACTIVE and only
// logged; money was taken for the period, so access is not cut.
func (s *Service) SweepSubscriber(ctx context.Context, subscriberID snowflake.ID) (int, error) {
	suspended := 0
	err := s.locks.Do(subscriberID.String(), func() error {
		now := s.clock.Now()
		subs, err := s.repo.FindExpiredActiveBySubscriber(ctx, s.db, subscriberID, now)
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			return nil
		}

		balance, err := s.billing.Balance(ctx, s.db, subscriberID)
		if err != nil {
			return err
		}
		if balance <= 0 {
			for _, sub := range subs {
				s.log.Info("subscription past expiry but ledger settled, leaving active",
					zap.String("subscription_id", sub.ID.String()),
					zap.String("subscriber_id", subscriberID.String()),
				)
			}
			return nil
		}

		for i := range subs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.suspend(ctx, &subs[i], balance); err != nil {
				return err
			}
			suspended++
		}
		return nil
	})
	return suspended, err
}

func (s *Service) suspend(ctx context.Context, sub *domain.Subscription, balance int64) error {
	subscriber, device, _, err := s.resolveDevice(ctx, sub)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub.Status = domain.StatusExpired
		sub.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		if err := s.connector.SetDisabled(ctx, device, subscriber.Username, true); err != nil {
			return fmt.Errorf("disable %s: %w", subscriber.Username, err)
		}
		return nil
	}); err != nil {
		return err
	}

	s.log.Info("subscription suspended",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("subscriber_id", sub.SubscriberID.String()),
		zap.Int64("balance", balance),
	)
	s.notify(ctx, subscriber.Phone, notifierdomain.SuspensionMessage(balance))
	return nil
}

func (s *Service) GetByID(ctx context.Context, subscriptionID string) (domain.Subscription, error) {
	id, err := parseID(subscriptionID)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidSubscription
	}
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub == nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return *sub, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	limit := req.PageSize
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var afterID snowflake.ID
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, err
		}
		if cursor.ID != "" {
			afterID, err = snowflake.ParseString(cursor.ID)
			if err != nil {
				return domain.ListResponse{}, err
			}
		}
	}

	var subscriberID snowflake.ID
	if req.SubscriberID != "" {
		id, err := parseID(req.SubscriberID)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidSubscriber
		}
		subscriberID = id
	}

	subs, err := s.repo.List(ctx, s.db, domain.Status(req.Status), subscriberID, afterID, limit+1)
	if err != nil {
		return domain.ListResponse{}, err
	}

	resp := domain.ListResponse{Subscriptions: subs}
	if len(subs) > limit {
		resp.Subscriptions = subs[:limit]
		resp.HasMore = true
		last := resp.Subscriptions[limit-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return domain.ListResponse{}, err
		}
		resp.NextPageToken = token
	}
	return resp, nil
}

func (s *Service) GetSubscriberDetails(ctx context.Context, subscriberID string) (domain.SubscriberDetails, error) {
	id, err := parseID(subscriberID)
	if err != nil {
		return domain.SubscriberDetails{}, domain.ErrInvalidSubscriber
	}

	subscriber, err := s.subscriberRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.SubscriberDetails{}, err
	}
	if subscriber == nil {
		return domain.SubscriberDetails{}, subscriberdomain.ErrSubscriberNotFound
	}

	details := domain.SubscriberDetails{
		SubscriberID: subscriber.ID,
		FullName:     subscriber.FullName,
		Email:        subscriber.Email,
		Phone:        subscriber.Phone,
		Username:     subscriber.Username,
	}

	latest, err := s.repo.FindLatestBySubscriber(ctx, s.db, id)
	if err != nil {
		return domain.SubscriberDetails{}, err
	}
	if latest != nil {
		details.SubscriptionID = latest.ID
		details.Status = latest.Status
		details.StartAt = latest.StartAt
		details.ExpiryAt = latest.ExpiryAt

		pkg, err := s.catalogRepo.FindByID(ctx, s.db, latest.PackageID)
		if err != nil {
			return domain.SubscriberDetails{}, err
		}
		if pkg != nil {
			details.PackageName = pkg.Name
			details.DownloadSpeed = pkg.DownloadSpeed
			details.UploadSpeed = pkg.UploadSpeed
		}
	}

	balance, err := s.billing.Balance(ctx, s.db, id)
	if err != nil {
		return domain.SubscriberDetails{}, err
	}
	details.Balance = balance
	return details, nil
}

// withSubscriptionLock loads the subscription, takes its subscriber's lock
// and re-reads the row under the lock before running fn, so fn always sees
// the latest committed state.
func (s *Service) withSubscriptionLock(ctx context.Context, id snowflake.ID, fn func(sub *domain.Subscription) error) error {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if sub == nil {
		return domain.ErrSubscriptionNotFound
	}

	return s.locks.Do(sub.SubscriberID.String(), func() error {
		fresh, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return err
		}
		if fresh == nil {
			return domain.ErrSubscriptionNotFound
		}
		return fn(fresh)
	})
}

func (s *Service) resolve(ctx context.Context, subscriberID, packageID snowflake.ID) (*subscriberdomain.Subscriber, *catalogdomain.Package, error) {
	subscriber, err := s.subscriberRepo.FindByID(ctx, s.db, subscriberID)
	if err != nil {
		return nil, nil, err
	}
	if subscriber == nil {
		return nil, nil, subscriberdomain.ErrSubscriberNotFound
	}
	pkg, err := s.catalogRepo.FindByID(ctx, s.db, packageID)
	if err != nil {
		return nil, nil, err
	}
	if pkg == nil {
		return nil, nil, catalogdomain.ErrPackageNotFound
	}
	return subscriber, pkg, nil
}

func (s *Service) resolveDevice(ctx context.Context, sub *domain.Subscription) (*subscriberdomain.Subscriber, mikrotikdomain.Device, *catalogdomain.Package, error) {
	subscriber, err := s.subscriberRepo.FindByID(ctx, s.db, sub.SubscriberID)
	if err != nil {
		return nil, mikrotikdomain.Device{}, nil, err
	}
	if subscriber == nil {
		return nil, mikrotikdomain.Device{}, nil, subscriberdomain.ErrSubscriberNotFound
	}

	router, err := s.subscriberRepo.FindRouterByID(ctx, s.db, sub.RouterID)
	if err != nil {
		return nil, mikrotikdomain.Device{}, nil, err
	}
	if router == nil {
		return nil, mikrotikdomain.Device{}, nil, subscriberdomain.ErrRouterNotFound
	}

	pkg, err := s.catalogRepo.FindByID(ctx, s.db, sub.PackageID)
	if err != nil {
		return nil, mikrotikdomain.Device{}, nil, err
	}
	if pkg == nil {
		return nil, mikrotikdomain.Device{}, nil, catalogdomain.ErrPackageNotFound
	}

	device := mikrotikdomain.Device{
		Address:  router.Address,
		Username: router.APIUsername,
		Password: router.APIPassword,
	}
	return subscriber, device, pkg, nil
}

// notifyActivation sends the activation SMS. Notification failures never
// affect the transition; the state change has already committed.
func (s *Service) notifyActivation(ctx context.Context, sub domain.Subscription) {
	subscriber, err := s.subscriberRepo.FindByID(ctx, s.db, sub.SubscriberID)
	if err != nil || subscriber == nil {
		return
	}
	pkg, err := s.catalogRepo.FindByID(ctx, s.db, sub.PackageID)
	if err != nil || pkg == nil || sub.ExpiryAt == nil {
		return
	}
	company, err := s.subscriberRepo.FindActiveCompany(ctx, s.db)
	if err != nil || company == nil {
		s.log.Warn("no active company, skipping activation sms",
			zap.String("subscription_id", sub.ID.String()))
		return
	}

	msg := notifierdomain.ActivationMessage(notifierdomain.Company{
		Name:     company.Name,
		SenderID: company.SenderID,
		APIKey:   company.SMSAPIKey,
	}, subscriber.FullName, pkg.Name, *sub.ExpiryAt)

	if err := s.sms.Send(ctx, notifierdomain.Company{
		Name:     company.Name,
		SenderID: company.SenderID,
		APIKey:   company.SMSAPIKey,
	}, subscriber.Phone, msg); err != nil {
		s.log.Warn("activation sms failed",
			zap.String("phone", subscriber.Phone),
			zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, phone, message string) {
	company, err := s.subscriberRepo.FindActiveCompany(ctx, s.db)
	if err != nil || company == nil {
		s.log.Warn("no active company, skipping sms", zap.String("phone", phone))
		return
	}
	if err := s.sms.Send(ctx, notifierdomain.Company{
		Name:     company.Name,
		SenderID: company.SenderID,
		APIKey:   company.SMSAPIKey,
	}, phone, message); err != nil {
		s.log.Warn("sms failed", zap.String("phone", phone), zap.Error(err))
	}
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(raw)
}
