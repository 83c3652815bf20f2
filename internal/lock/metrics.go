package lock

import "github.com/prometheus/client_golang/prometheus"

var (
	lockEpisodes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "applock_lock_episodes_total",
		Help: "Lock episodes started.",
	})
	forcedUnlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "applock_lock_forced_unlocks_total",
		Help: "Locks released because policy or capability no longer required them.",
	})
)

func init() {
	prometheus.MustRegister(lockEpisodes, forcedUnlocks)
}
