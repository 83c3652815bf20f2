package biometric

import "github.com/prometheus/client_golang/prometheus"

var authAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "applock_auth_attempts_total",
	Help: "Biometric prompts by purpose and normalized outcome.",
}, []string{"purpose", "outcome"})

func init() {
	prometheus.MustRegister(authAttempts)
}
