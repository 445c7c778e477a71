package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/vitalsgw/internal/ingest"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsgw",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vitalsgw",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	ingestBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsgw",
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Bytes consumed from the instrument link.",
		},
		[]string{"device"},
	)
	ingestEmits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsgw",
			Subsystem: "ingest",
			Name:      "emits_total",
			Help:      "Records handed to the sink, by completion reason.",
		},
		[]string{"device", "reason"},
	)
	ingestDiscards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsgw",
			Subsystem: "ingest",
			Name:      "discards_total",
			Help:      "Buffered input dropped without emission.",
		},
		[]string{"device", "reason"},
	)
	ingestFields = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsgw",
			Subsystem: "ingest",
			Name:      "fields_total",
			Help:      "Field decode results from text lines.",
		},
		[]string{"device", "field", "result"},
	)
	sinkDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsgw",
			Subsystem: "sink",
			Name:      "deliveries_total",
			Help:      "Sink delivery attempts by outcome.",
		},
		[]string{"sink", "outcome"},
	)
	sinkQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vitalsgw",
			Subsystem: "sink",
			Name:      "queue_depth",
			Help:      "Payloads waiting in an async sink queue.",
		},
		[]string{"sink"},
	)
	sourceDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsgw",
			Subsystem: "source",
			Name:      "dropped_bytes_total",
			Help:      "Bytes dropped by the source buffer before the ingest core read them.",
		},
		[]string{"port"},
	)
	sourceReopens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsgw",
			Subsystem: "source",
			Name:      "reopen_attempts_total",
			Help:      "Byte source open attempts by outcome.",
		},
		[]string{"port", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			ingestBytes,
			ingestEmits,
			ingestDiscards,
			ingestFields,
			sinkDeliveries,
			sinkQueueDepth,
			sourceDropped,
			sourceReopens,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordSinkDelivery(sink, outcome string) {
	RegisterMetrics()
	sinkDeliveries.WithLabelValues(sink, outcome).Inc()
}

func SetSinkQueueDepth(sink string, depth int) {
	RegisterMetrics()
	sinkQueueDepth.WithLabelValues(sink).Set(float64(depth))
}

func RecordSourceOpen(port string, success bool) {
	RegisterMetrics()
	sourceReopens.WithLabelValues(port, strconv.FormatBool(success)).Inc()
}

func RecordSourceDropped(port string, n uint64) {
	RegisterMetrics()
	sourceDropped.WithLabelValues(port).Add(float64(n))
}

// IngestObserver feeds ingest events into the registered collectors.
type IngestObserver struct {
	device string
}

var _ ingest.Observer = IngestObserver{}

func NewIngestObserver(device string) IngestObserver {
	RegisterMetrics()
	return IngestObserver{device: device}
}

func (o IngestObserver) BytesRead(n int) {
	ingestBytes.WithLabelValues(o.device).Add(float64(n))
}

func (o IngestObserver) Discarded(reason ingest.DiscardReason) {
	ingestDiscards.WithLabelValues(o.device, string(reason)).Inc()
}

func (o IngestObserver) FieldDecoded(field string) {
	ingestFields.WithLabelValues(o.device, field, "decoded").Inc()
}

func (o IngestObserver) FieldMalformed(field string) {
	ingestFields.WithLabelValues(o.device, field, "malformed").Inc()
}

func (o IngestObserver) Emitted(reason ingest.EmitReason) {
	ingestEmits.WithLabelValues(o.device, string(reason)).Inc()
}
