package tickets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ticketsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "abilitywars_tickets_opened_total",
	Help: "Number of tickets opened, by kind.",
}, []string{"kind"})

var ticketsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "abilitywars_tickets_closed_total",
	Help: "Number of tickets closed, by kind.",
}, []string{"kind"})

var ticketsCleaned = promauto.NewCounter(prometheus.CounterOpts{
	Name: "abilitywars_tickets_cleaned_total",
	Help: "Number of dead tickets force-closed by cleanup.",
})

var mentionWarnings = promauto.NewCounter(prometheus.CounterOpts{
	Name: "abilitywars_mention_warnings_total",
	Help: "Number of staff-mention warnings issued on unban tickets.",
})
