package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Simulation step metrics
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nbody_step_duration_seconds",
			Help:    "Duration of one simulation step in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"algorithm"},
	)

	StepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbody_steps_total",
			Help: "Total number of simulation steps executed",
		},
		[]string{"algorithm"},
	)

	// Tree shape of the most recent Barnes-Hut step
	TreeNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nbody_tree_nodes",
			Help: "Nodes in the most recently built quadtree",
		},
	)

	TreeDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nbody_tree_depth",
			Help: "Depth of the deepest occupied leaf in the most recent quadtree",
		},
	)

	TreeMergedLeaves = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nbody_tree_merged_leaves",
			Help: "Leaves holding coincident particles in the most recent quadtree",
		},
	)

	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbody_runs_total",
			Help: "Total number of simulation runs finished",
		},
		[]string{"algorithm", "status"}, // status: completed, failed, canceled, cached
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nbody_run_duration_seconds",
			Help:    "Wall-clock duration of simulation runs in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"algorithm"},
	)

	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nbody_runs_active",
			Help: "Number of simulation runs currently executing",
		},
	)

	RunsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nbody_runs_recorded",
			Help: "Runs recorded in the ledger by status",
		},
		[]string{"status"},
	)

	// Result cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbody_cache_hits_total",
			Help: "Total number of result cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbody_cache_misses_total",
			Help: "Total number of result cache misses",
		},
		[]string{"cache"},
	)

	CacheItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nbody_cache_items",
			Help: "Current number of items in the result cache",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbody_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache"},
	)

	// API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Ledger errors
	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operation_errors_total",
			Help: "Total number of run ledger errors",
		},
		[]string{"operation"},
	)

	// Metrics collection error tracking
	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"collector"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)

	WebSocketMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Frames dropped because a client could not keep up",
		},
	)
)
