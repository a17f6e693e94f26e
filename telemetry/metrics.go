// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsReceived   prometheus.Counter
	MessagesAccepted prometheus.Counter
	MessagesDropped  *prometheus.CounterVec // label: reason (self|duplicate|malformed)
	AvatarLookups    *prometheus.CounterVec // label: result (ok|error)
	SessionsStarted  prometheus.Counter

	// Histograms (seconds)
	AvatarLookupDuration prometheus.Observer

	// Gauges
	SessionActiveGauge prometheus.Gauge
	PanelsGauge        prometheus.Gauge
	StoreMessagesGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_events_received_total", Help: "Chat events handed to the ingestion pipeline"})
		MessagesAccepted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_accepted_total", Help: "Chat messages appended to the message store"})
		MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_messages_dropped_total", Help: "Chat events dropped before the store"}, []string{"reason"})
		AvatarLookups = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_avatar_lookups_total", Help: "Profile image lookups by result"}, []string{"result"})
		SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_sessions_started_total", Help: "Chat sessions started"})
		AvatarLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_avatar_lookup_duration_seconds", Help: "Profile image lookup duration seconds", Buckets: prometheus.DefBuckets})
		SessionActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_session_active", Help: "1 while a chat session is connected"})
		PanelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_panels", Help: "Panels in the grouped view"})
		StoreMessagesGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_store_messages", Help: "Messages held by the current session"})
	})
}

// IncEventsReceived counts one inbound event.
func IncEventsReceived() {
	if EventsReceived != nil {
		EventsReceived.Inc()
	}
}

// IncAccepted counts one accepted message.
func IncAccepted() {
	if MessagesAccepted != nil {
		MessagesAccepted.Inc()
	}
}

// IncDropped counts one dropped event for reason.
func IncDropped(reason string) {
	if MessagesDropped != nil {
		MessagesDropped.WithLabelValues(reason).Inc()
	}
}

// ObserveAvatarLookup records a lookup result and its duration.
func ObserveAvatarLookup(ok bool, d time.Duration) {
	if AvatarLookups != nil {
		result := "ok"
		if !ok {
			result = "error"
		}
		AvatarLookups.WithLabelValues(result).Inc()
	}
	if AvatarLookupDuration != nil {
		AvatarLookupDuration.Observe(d.Seconds())
	}
}

// SessionStarted marks a new active session.
func SessionStarted() {
	if SessionsStarted != nil {
		SessionsStarted.Inc()
	}
	SetSessionActive(true)
}

// SetSessionActive sets gauge to 1 if active else 0.
func SetSessionActive(active bool) {
	if SessionActiveGauge != nil {
		if active {
			SessionActiveGauge.Set(1)
		} else {
			SessionActiveGauge.Set(0)
		}
	}
}

// SetPanels records the current panel count.
func SetPanels(n int) {
	if PanelsGauge != nil {
		PanelsGauge.Set(float64(n))
	}
}

// SetStoreMessages records the current store size.
func SetStoreMessages(n int) {
	if StoreMessagesGauge != nil {
		StoreMessagesGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
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
