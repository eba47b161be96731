// Package metrics exposes delivery outcome counters, optionally served over
// HTTP for scraping.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quakebot/pkg/logx"
)

const (
	// Skip reasons used as label values.
	ReasonAlreadySent       = "already_sent"
	ReasonReservedElsewhere = "reserved_elsewhere"
)

// Set holds the process metrics on a private registry, so tests can create
// independent instances without duplicate-registration panics.
type Set struct {
	reg *prometheus.Registry

	EventsSent     prometheus.Counter
	EventsSkipped  *prometheus.CounterVec
	EventsFailed   prometheus.Counter
	ClaimConflicts prometheus.Counter
	RunCycles      prometheus.Counter
	RunFailures    prometheus.Counter

	server *http.Server
}

func NewSet() *Set {
	s := &Set{reg: prometheus.NewRegistry()}

	s.EventsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quakebot", Name: "events_sent_total",
		Help: "Events delivered and committed.",
	})
	s.EventsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quakebot", Name: "events_skipped_total",
		Help: "Events skipped, by reason.",
	}, []string{"reason"})
	s.EventsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quakebot", Name: "events_failed_total",
		Help: "Events whose render or delivery failed; claims were released.",
	})
	s.ClaimConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quakebot", Name: "claim_conflicts_total",
		Help: "TryClaim attempts lost to another live instance.",
	})
	s.RunCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quakebot", Name: "run_cycles_total",
		Help: "Completed run cycles.",
	})
	s.RunFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quakebot", Name: "run_failures_total",
		Help: "Run cycles aborted by an unhandled error.",
	})

	s.reg.MustRegister(
		s.EventsSent, s.EventsSkipped, s.EventsFailed,
		s.ClaimConflicts, s.RunCycles, s.RunFailures,
	)
	return s
}

// Serve starts the /metrics listener on addr; empty addr disables serving.
func (s *Set) Serve(addr string, log logx.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics listener stopped", logx.Err(err))
		}
	}()
	log.Info("metrics listening", logx.String("addr", addr))
}

// Close shuts the listener down, if one was started.
func (s *Set) Close(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
