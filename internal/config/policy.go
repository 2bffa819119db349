package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingPolicy is the operational billing policy: how long a paid period
// lasts and how the reconciliation sweep is paced. It is loaded from
// netbill.yml and hot-reloaded, so operators can tune the sweep without a
// restart.
type BillingPolicy struct {
	// BillingPeriodMonths is the length of one paid period. Expiry is
	// always computed as activation time plus this many months.
	BillingPeriodMonths int `mapstructure:"billingPeriodMonths"`

	SweepInterval time.Duration `mapstructure:"sweepInterval"`
	SweepWorkers  int           `mapstructure:"sweepWorkers"`
	JobTimeout    time.Duration `mapstructure:"jobTimeout"`
	EnabledJobs   []string      `mapstructure:"enabledJobs"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		BillingPeriodMonths: 1,
		SweepInterval:       5 * time.Minute,
		SweepWorkers:        4,
		JobTimeout:          2 * time.Minute,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("netbill")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/netbill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NETBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultBillingPolicy()
		v.SetDefault("billing.billingPeriodMonths", defaults.BillingPeriodMonths)
		v.SetDefault("billing.sweepInterval", defaults.SweepInterval)
		v.SetDefault("billing.sweepWorkers", defaults.SweepWorkers)
		v.SetDefault("billing.jobTimeout", defaults.JobTimeout)
	}

	var policy BillingPolicy
	if err := v.UnmarshalKey("billing", &policy); err != nil {
		return nil, err
	}
	policy = policy.withDefaults()
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingPolicy
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-policy] reload failed: %v", err)
			return
		}
		updated = updated.withDefaults()
		if err := validatePolicy(updated); err != nil {
			log.Printf("[billing-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PolicyHolder) Get() BillingPolicy {
	return h.current.Load().(BillingPolicy)
}

// NewStaticPolicyHolder returns a holder pinned to the given policy. Tests
// use it to avoid touching the filesystem.
func NewStaticPolicyHolder(policy BillingPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy.withDefaults())
	return holder
}

func (p BillingPolicy) withDefaults() BillingPolicy {
	defaults := DefaultBillingPolicy()
	if p.BillingPeriodMonths <= 0 {
		p.BillingPeriodMonths = defaults.BillingPeriodMonths
	}
	if p.SweepInterval <= 0 {
		p.SweepInterval = defaults.SweepInterval
	}
	if p.SweepWorkers <= 0 {
		p.SweepWorkers = defaults.SweepWorkers
	}
	if p.JobTimeout <= 0 {
		p.JobTimeout = defaults.JobTimeout
	}
	return p
}

func validatePolicy(p BillingPolicy) error {
	if p.BillingPeriodMonths < 1 {
		return errors.New("billing.billingPeriodMonths must be at least 1")
	}
	if p.SweepWorkers < 1 {
		return errors.New("billing.sweepWorkers must be at least 1")
	}
	return nil
}
