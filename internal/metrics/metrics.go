package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Ingestion metrics
	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrackr_heartbeats_total",
			Help: "Total heartbeats processed by session mergers",
		},
		[]string{"session"},
	)

	RecordsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrackr_records_opened_total",
			Help: "Activity records opened by session mergers",
		},
		[]string{"session", "classified"},
	)

	FlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrackr_flushes_total",
			Help: "Open-record flushes by result",
		},
		[]string{"result"},
	)

	WriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrackr_write_failures_total",
			Help: "Store writes that failed at the merger boundary",
		},
		[]string{"op"},
	)

	// Classification metrics
	RuleMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrackr_rule_matches_total",
			Help: "Rule evaluations by outcome",
		},
		[]string{"result"},
	)

	RuleCacheReloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autotrackr_rule_cache_reloads_total",
			Help: "Times the rule cache was reloaded from the store",
		},
	)

	AutoAssigned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autotrackr_auto_assigned_total",
			Help: "Records classified retroactively by rules",
		},
	)

	// Boundary metrics
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autotrackr_operation_duration_seconds",
			Help:    "Boundary operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"route", "status"},
	)

	OpenSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autotrackr_open_sessions",
			Help: "Session mergers currently holding an open record",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HeartbeatsTotal,
		RecordsOpened,
		FlushesTotal,
		WriteFailures,
		RuleMatches,
		RuleCacheReloads,
		AutoAssigned,
		OperationDuration,
		OpenSessions,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
