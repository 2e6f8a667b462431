package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_sync_refresh_total",
		Help: "Registry refresh passes by kind and outcome.",
	}, []string{"kind", "outcome"})

	eventTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_sync_events_total",
		Help: "Contract events applied to the registry by name and outcome.",
	}, []string{"event", "outcome"})
)

func observeRefresh(kind string, err error) {
	refreshTotal.WithLabelValues(kind, outcome(err)).Inc()
}

func observeEvent(event string, err error) {
	eventTotal.WithLabelValues(event, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
