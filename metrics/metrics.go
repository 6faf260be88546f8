// Package metrics exports session, login and transfer counters in the
// Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "miniftp"

// knownVerbs bounds the label cardinality of the commands counter.
var knownVerbs = map[string]bool{"USER": true, "PASS": true, "RETR": true, "QUIT": true}

type Collector struct {
	registry  *prometheus.Registry
	active    prometheus.Gauge
	sessions  *prometheus.CounterVec
	logins    *prometheus.CounterVec
	commands  *prometheus.CounterVec
	transfers *prometheus.CounterVec
	bytesSent prometheus.Counter
	duration  prometheus.Histogram
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently being served.",
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by how they ended.",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Credential checks by result.",
		}, []string{"success"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Decoded commands by verb.",
		}, []string{"verb"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retr",
			Name:      "transfers_total",
			Help:      "RETR operations by outcome.",
		}, []string{"outcome"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retr",
			Name:      "bytes_total",
			Help:      "Payload bytes written by RETR.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retr",
			Name:      "duration_seconds",
			Help:      "Time spent streaming RETR payloads.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	c.registry.MustRegister(c.active, c.sessions, c.logins, c.commands, c.transfers, c.bytesSent, c.duration)
	return c
}

func (c *Collector) SessionStarted() {
	c.active.Inc()
}

func (c *Collector) SessionEnded(outcome string) {
	c.active.Dec()
	c.sessions.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordAuthentication(success bool) {
	c.logins.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (c *Collector) RecordCommand(verb string) {
	if !knownVerbs[verb] {
		verb = "other"
	}
	c.commands.WithLabelValues(verb).Inc()
}

func (c *Collector) RecordTransfer(outcome string, bytes int64, duration time.Duration) {
	c.transfers.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		c.bytesSent.Add(float64(bytes))
	}
	if duration > 0 {
		c.duration.Observe(duration.Seconds())
	}
}

// Handler serves the collector's registry
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes /metrics on addr until ctx is cancelled
func (c *Collector) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
