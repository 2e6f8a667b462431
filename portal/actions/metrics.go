package actions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "portal_actions_total",
	Help: "Dispatched wallet actions by action and outcome.",
}, []string{"action", "outcome"})

func observeAction(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	actionTotal.WithLabelValues(action, outcome).Inc()
}
