package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Guard pipeline metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_guard_requests_total",
			Help: "Total number of requests evaluated by the guard",
		},
		[]string{"route", "outcome"},
	)

	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_guard_rejections_total",
			Help: "Total number of requests rejected, by stage",
		},
		[]string{"stage", "status"},
	)

	CheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sos_guard_check_duration_seconds",
			Help:    "Duration of the guard pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_guard_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"class"},
	)

	// Blocking metrics
	BlocksPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_guard_blocks_placed_total",
			Help: "Total number of identity blocks placed",
		},
		[]string{"permanent"},
	)

	// Security event metrics
	SecurityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_guard_security_events_total",
			Help: "Total number of security events recorded",
		},
		[]string{"type", "severity"},
	)

	SecurityEventsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sos_guard_security_events_stored",
			Help: "Number of security events currently held by the event store",
		},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_guard_notifications_dropped_total",
			Help: "Total number of critical-event notifications dropped by the throttle",
		},
	)

	ThreatsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_guard_threats_detected_total",
			Help: "Total number of threat labels raised by body scans",
		},
		[]string{"label"},
	)

	// Session metrics
	SessionRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_guard_session_rotations_total",
			Help: "Total number of session token rotations",
		},
	)

	// Maintenance metrics
	SweepRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_guard_sweep_removed_total",
			Help: "Total number of entries removed by background sweeps",
		},
		[]string{"sweep"},
	)
)
