package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abilitywars_relay_commands_enqueued_total",
		Help: "Total commands enqueued for the game server, by kind",
	}, []string{"kind"})
	commandsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abilitywars_relay_commands_expired_total",
		Help: "Total commands dropped unanswered after the TTL",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "abilitywars_relay_queue_depth",
		Help: "Number of commands currently pending",
	})
	resultsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abilitywars_relay_results_applied_total",
		Help: "Total result entries applied, by kind",
	}, []string{"kind"})
	resultsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abilitywars_relay_results_rejected_total",
		Help: "Total result entries rejected as malformed",
	})
	pollRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abilitywars_relay_polls_total",
		Help: "Total snapshot polls served to the game server",
	})
)
