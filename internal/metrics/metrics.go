// Package metrics exposes Prometheus counters for the payment core. Served
// at /metrics on the main router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var TransactionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "payment",
	Name:      "transactions_recorded_total",
	Help:      "Transactions recorded, by type and initial status.",
}, []string{"type", "status"})

var TransactionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "payment",
	Name:      "transaction_transitions_total",
	Help:      "Transaction status transitions, by type and final status.",
}, []string{"type", "status"})

var EscrowReleases = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "payment",
	Name:      "escrow_milestone_releases_total",
	Help:      "Milestone payments released from escrow.",
})

var WithdrawalOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "payment",
	Name:      "withdrawal_outcomes_total",
	Help:      "Withdrawals by terminal outcome.",
}, []string{"outcome"})

var WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "payment",
	Name:      "webhook_events_total",
	Help:      "Processor webhook events, by type and handling result.",
}, []string{"type", "result"})

var ProcessorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "payment",
	Name:      "processor_requests_total",
	Help:      "Outbound payment processor calls, by operation and result.",
}, []string{"operation", "result"})
