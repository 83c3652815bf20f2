package stepup

import "github.com/prometheus/client_golang/prometheus"

var stepUps = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "applock_stepup_total",
	Help: "Closed step-up sessions by result.",
}, []string{"result"})

func init() {
	prometheus.MustRegister(stepUps)
}
