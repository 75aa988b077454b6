// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesIngested  prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	MappingErrors     prometheus.Counter
	StorageErrors     prometheus.Counter
	PollFailures      prometheus.Counter
	Recoveries        prometheus.Counter
	SubscribersDropped prometheus.Counter
	MessagesSent      prometheus.Counter
	SendFailures      prometheus.Counter

	// Gauges
	SubscribersGauge prometheus.Gauge
	// LastPollSuccessGauge carries the unix time of the last successful poll.
	// The fetcher's retry-forever recovery has no terminal failure state, so
	// this is the operational liveness signal.
	LastPollSuccessGauge prometheus.Gauge

	// lastPollUnixNano mirrors the gauge for readiness checks.
	lastPollUnixNano atomic.Int64
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_ingested_total", Help: "Chat messages persisted and published"})
		DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_duplicates_skipped_total", Help: "Chat messages skipped because their youtube id was already stored"})
		MappingErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_mapping_errors_total", Help: "Upstream items that could not be mapped to a chat message"})
		StorageErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_storage_errors_total", Help: "Chat message inserts that failed on storage errors"})
		PollFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_poll_failures_total", Help: "Live chat list calls that failed or reported broadcast end"})
		Recoveries = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_recoveries_total", Help: "Successful live chat id resolutions after a poll failure"})
		SubscribersDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_subscribers_dropped_total", Help: "Subscriptions dropped for overflowing their delivery buffer"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_sent_total", Help: "Outbound chat messages accepted by the upstream"})
		SendFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_send_failures_total", Help: "Outbound chat messages rejected or failed"})
		SubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_subscribers", Help: "Current number of live subscriptions"})
		LastPollSuccessGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_last_poll_success_timestamp_seconds", Help: "Unix time of the last successful live chat poll"})
	})
}

func IncMessagesIngested() {
	if MessagesIngested != nil {
		MessagesIngested.Inc()
	}
}

func IncDuplicatesSkipped() {
	if DuplicatesSkipped != nil {
		DuplicatesSkipped.Inc()
	}
}

func IncMappingErrors() {
	if MappingErrors != nil {
		MappingErrors.Inc()
	}
}

func IncStorageErrors() {
	if StorageErrors != nil {
		StorageErrors.Inc()
	}
}

func IncPollFailures() {
	if PollFailures != nil {
		PollFailures.Inc()
	}
}

func IncRecoveries() {
	if Recoveries != nil {
		Recoveries.Inc()
	}
}

func IncMessagesSent() {
	if MessagesSent != nil {
		MessagesSent.Inc()
	}
}

func IncSendFailures() {
	if SendFailures != nil {
		SendFailures.Inc()
	}
}

// AddSubscribersDropped records n subscriptions dropped by the overflow policy.
func AddSubscribersDropped(n int) {
	if SubscribersDropped != nil {
		SubscribersDropped.Add(float64(n))
	}
}

// SetSubscribers records the current live subscription count.
func SetSubscribers(n int) {
	if SubscribersGauge != nil {
		SubscribersGauge.Set(float64(n))
	}
}

// SetLastPollSuccess records the time of the last successful poll.
func SetLastPollSuccess(t time.Time) {
	lastPollUnixNano.Store(t.UnixNano())
	if LastPollSuccessGauge != nil {
		LastPollSuccessGauge.Set(float64(t.Unix()))
	}
}

// LastPollSuccess returns the time of the last successful poll, or the zero
// time when no poll has succeeded yet.
func LastPollSuccess() time.Time {
	n := lastPollUnixNano.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
