package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bansRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abilitywars_bans_recorded_total",
		Help: "Total number of ban records written to the ledger",
	})
	unbansRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abilitywars_unbans_recorded_total",
		Help: "Total number of unban audit entries written",
	})
)
