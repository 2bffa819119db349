package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicyDefaultsApplied(t *testing.T) {
	holder := NewStaticPolicyHolder(BillingPolicy{})
	policy := holder.Get()

	require.Equal(t, 1, policy.BillingPeriodMonths)
	require.Equal(t, 5*time.Minute, policy.SweepInterval)
	require.Equal(t, 4, policy.SweepWorkers)
	require.Equal(t, 2*time.Minute, policy.JobTimeout)
}

func TestStaticHolderKeepsExplicitValues(t *testing.T) {
	holder := NewStaticPolicyHolder(BillingPolicy{
		BillingPeriodMonths: 3,
		SweepInterval:       time.Minute,
		SweepWorkers:        8,
		JobTimeout:          30 * time.Second,
	})
	policy := holder.Get()

	require.Equal(t, 3, policy.BillingPeriodMonths)
	require.Equal(t, time.Minute, policy.SweepInterval)
	require.Equal(t, 8, policy.SweepWorkers)
}

func TestValidatePolicy(t *testing.T) {
	require.Error(t, validatePolicy(BillingPolicy{BillingPeriodMonths: 0, SweepWorkers: 1}))
	require.Error(t, validatePolicy(BillingPolicy{BillingPeriodMonths: 1, SweepWorkers: 0}))
	require.NoError(t, validatePolicy(BillingPolicy{BillingPeriodMonths: 1, SweepWorkers: 1}))
}
