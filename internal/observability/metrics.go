package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/posewire/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posewire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "posewire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	codecFramesEncoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posewire",
			Subsystem: "codec",
			Name:      "frames_encoded_total",
			Help:      "Top-level frames encoded.",
		},
		[]string{"node", "kind"},
	)
	codecBytesEncoded = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "posewire",
			Subsystem: "codec",
			Name:      "bytes_encoded",
			Help:      "Size of encoded buffers in bytes.",
			Buckets:   prometheus.ExponentialBuckets(8, 2, 12),
		},
		[]string{"node"},
	)
	codecDecodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posewire",
			Subsystem: "codec",
			Name:      "decodes_total",
			Help:      "Buffers decoded, by result.",
		},
		[]string{"node", "result"},
	)
	codecDecodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posewire",
			Subsystem: "codec",
			Name:      "decode_errors_total",
			Help:      "Rejected buffers, by failure reason.",
		},
		[]string{"node", "reason"},
	)
	codecFieldsDefaulted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posewire",
			Subsystem: "codec",
			Name:      "fields_defaulted_total",
			Help:      "Record fields substituted with zero values during projection.",
		},
		[]string{"node", "field", "reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			codecFramesEncoded,
			codecBytesEncoded,
			codecDecodes,
			codecDecodeErrors,
			codecFieldsDefaulted,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordEncode(node string, kind string, size int) {
	RegisterMetrics()
	codecFramesEncoded.WithLabelValues(node, kind).Inc()
	codecBytesEncoded.WithLabelValues(node).Observe(float64(size))
}

// RecordDecode counts one decode attempt. err may be nil.
func RecordDecode(node string, err error) {
	RegisterMetrics()
	if err != nil {
		codecDecodes.WithLabelValues(node, "error").Inc()
		codecDecodeErrors.WithLabelValues(node, DecodeErrorReason(err)).Inc()
		return
	}
	codecDecodes.WithLabelValues(node, "ok").Inc()
}

func RecordDiagnostics(node string, diags protocol.Diagnostics) {
	RegisterMetrics()
	for _, d := range diags {
		codecFieldsDefaulted.WithLabelValues(node, d.Field, d.Reason.String()).Inc()
	}
}

// DecodeErrorReason classifies a codec error into a stable label.
func DecodeErrorReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, protocol.ErrUnknownTag):
		return "unknown_tag"
	case errors.Is(err, protocol.ErrTruncatedFrame):
		return "truncated_frame"
	case errors.Is(err, protocol.ErrInvalidLength):
		return "invalid_length"
	case errors.Is(err, protocol.ErrDepthExceeded):
		return "depth_exceeded"
	case errors.Is(err, protocol.ErrDuplicateKey):
		return "duplicate_key"
	case errors.Is(err, protocol.ErrRecordNotFound):
		return "record_not_found"
	default:
		return "other"
	}
}
