package observability

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/hdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

var (
	registerOnce sync.Once

	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cqc",
			Subsystem: "wire",
			Name:      "messages_total",
			Help:      "CQC messages by direction and header type.",
		},
		[]string{"role", "direction", "type"},
	)
	waitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cqc",
			Subsystem: "client",
			Name:      "wait_duration_seconds",
			Help:      "Time blocked waiting for node replies, by operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)
	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cqc",
			Subsystem: "client",
			Name:      "errors_total",
			Help:      "Failed client operations by error class.",
		},
		[]string{"op", "class"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(messages, waitDuration, failures)
	})
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

// RecordMessage counts one message; role is "client" or "node".
func RecordMessage(role, direction string, t hdr.MsgType) {
	RegisterMetrics()
	messages.WithLabelValues(role, direction, t.String()).Inc()
}

// ObserveWait records how long op blocked and whether it succeeded.
func ObserveWait(op string, d time.Duration, err error) {
	RegisterMetrics()
	outcome := "ok"
	if err != nil {
		outcome = "error"
		failures.WithLabelValues(op, ErrorClass(err)).Inc()
	}
	waitDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// ErrorClass maps err onto the protocol error taxonomy for labels.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, protocol.ErrTimeout):
		return "timeout"
	case errors.Is(err, protocol.ErrConnection):
		return "connection"
	case errors.Is(err, protocol.ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(err, protocol.ErrInvalidParameters):
		return "invalid_parameters"
	case errors.Is(err, protocol.ErrBackend):
		return "backend"
	case errors.Is(err, protocol.ErrUnexpectedNotification):
		return "unexpected_notification"
	default:
		return "other"
	}
}
