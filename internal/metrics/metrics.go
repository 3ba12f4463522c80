// Package metrics exposes the server's Prometheus collectors. Collectors
// are package-level and registered once; handlers and services increment
// them directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveGames tracks games currently in active status.
	ActiveGames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "veillee",
		Name:      "active_games",
		Help:      "Number of games currently active",
	})

	// WSConnections tracks open WebSocket connections.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "veillee",
		Name:      "ws_connections",
		Help:      "Number of open WebSocket connections",
	})

	// SubmissionsTotal counts accepted submissions by category.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veillee",
		Name:      "submissions_total",
		Help:      "Total accepted submissions",
	}, []string{"category"})

	// ResolutionsTotal counts completed resolutions by game type and step.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veillee",
		Name:      "resolutions_total",
		Help:      "Total completed round resolutions",
	}, []string{"game_type", "step"})

	// ResolutionRejections counts resolution attempts rejected by a
	// precondition (wrong phase, already resolved, not active).
	ResolutionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veillee",
		Name:      "resolution_rejections_total",
		Help:      "Resolution attempts rejected by a precondition check",
	}, []string{"step"})
)
