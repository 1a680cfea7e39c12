package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"lpstaking/internal/model"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFatal    = "fatal"
)

// StakingMetrics records controller activity. A nil *StakingMetrics is valid
// and records nothing.
type StakingMetrics struct {
	operations   *prometheus.CounterVec
	rewardsPaid  prometheus.Counter
	totalStaked  prometheus.Gauge
	lpVault      prometheus.Gauge
	rewardsVault prometheus.Gauge
}

// New builds the staking collectors and registers them with reg.
func New(reg prometheus.Registerer) *StakingMetrics {
	m := &StakingMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staking_operations_total",
			Help: "Count of staking operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staking_rewards_paid_total",
			Help: "Reward token units paid out by claims.",
		}),
		totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "staking_total_staked",
			Help: "LP token units currently staked in the pool.",
		}),
		lpVault: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "staking_lp_vault_balance",
			Help: "LP vault balance mirrored in the pool record.",
		}),
		rewardsVault: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "staking_rewards_vault_balance",
			Help: "Rewards vault balance mirrored in the pool record.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.rewardsPaid, m.totalStaked, m.lpVault, m.rewardsVault)
	}
	return m
}

// ObserveOperation counts one finished operation.
func (m *StakingMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err == nil:
	case model.IsFatal(err):
		outcome = OutcomeFatal
	default:
		outcome = OutcomeRejected
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// ObservePool publishes the committed pool totals.
func (m *StakingMetrics) ObservePool(pool model.Pool) {
	if m == nil {
		return
	}
	m.totalStaked.Set(float64(pool.TotalStaked))
	m.lpVault.Set(float64(pool.LPVaultBalance))
	m.rewardsVault.Set(float64(pool.RewardsVaultBalance))
}

func (m *StakingMetrics) ObserveRewardsPaid(amount uint64) {
	if m == nil {
		return
	}
	m.rewardsPaid.Add(float64(amount))
}
