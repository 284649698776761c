// Package metrics exposes Prometheus instrumentation for the wallet core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VaultOperations counts secure vault operations by kind and outcome.
	VaultOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strongroom_vault_operations_total",
		Help: "Secure vault operations by kind and outcome.",
	}, []string{"operation", "outcome"})

	// Derivations counts HSK key derivations by strategy and outcome.
	Derivations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strongroom_hsk_derivations_total",
		Help: "HSK key derivations by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	// Simulations counts transaction simulations by outcome.
	Simulations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strongroom_tx_simulations_total",
		Help: "Transaction simulations by outcome.",
	}, []string{"outcome"})

	// Signings counts transaction signings by chain and outcome.
	Signings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strongroom_tx_signings_total",
		Help: "Transaction signings by chain and outcome.",
	}, []string{"chain", "outcome"})

	// RiskAlerts counts risk alerts by level.
	RiskAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strongroom_risk_alerts_total",
		Help: "Risk alerts raised during transaction analysis, by level.",
	}, []string{"level"})

	// HardwarePromptSeconds observes how long hardware prompts (biometric,
	// security key tap) take to resolve.
	HardwarePromptSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "strongroom_hardware_prompt_seconds",
		Help:    "Duration of hardware authentication prompts.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

const (
	// OutcomeOK labels a successful operation.
	OutcomeOK = "ok"
	// OutcomeError labels a failed operation.
	OutcomeError = "error"
)

// Outcome maps an error to its outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
