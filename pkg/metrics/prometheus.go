// Package metrics provides Prometheus metrics for the crease pose client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector crease exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Telemetry channel
	channelState       prometheus.Gauge
	connectAttempts    prometheus.Counter
	reconnectsPlanned  *prometheus.CounterVec
	reconnectExhausted prometheus.Counter
	messagesByType     *prometheus.CounterVec
	decodeFailures     prometheus.Counter

	// Extraction
	framesExtracted    *prometheus.CounterVec
	personFailures     prometheus.Counter
	seekTimeouts       prometheus.Counter
	inferenceLatency   prometheus.Histogram
	extractionDuration *prometheus.HistogramVec

	// Frame pipeline
	queueSize       prometheus.Gauge
	queueCapacity   prometheus.Gauge
	queueEnqueued   prometheus.Counter
	queueDequeued   prometheus.Counter
	queueRejected   *prometheus.CounterVec
	framesPublished prometheus.Counter
	framesDuplicate prometheus.Counter
	sinkErrors      prometheus.Counter

	// HTTP status surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// Process
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcPauseTime    prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // private registry, no default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "crease",
		subsystem:        "client",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.channelState = m.gauge("channel_state", "Telemetry channel state (0 disconnected, 1 connecting, 2 open, 3 closing)")
	m.connectAttempts = m.counter("channel_connect_attempts_total", "Socket dial attempts")
	m.reconnectsPlanned = m.counterVec("channel_reconnects_scheduled_total", "Reconnects scheduled after abnormal closure, by attempt", "attempt")
	m.reconnectExhausted = m.counter("channel_reconnect_exhausted_total", "Times the reconnect ceiling was reached")
	m.messagesByType = m.counterVec("channel_messages_total", "Inbound channel messages by type", "type")
	m.decodeFailures = m.counter("channel_decode_failures_total", "Inbound payloads dropped because they could not be parsed")

	m.framesExtracted = m.counterVec("frames_extracted_total", "Frames produced by local extraction, by path", "path")
	m.personFailures = m.counter("person_estimation_failures_total", "Per-person pose estimations that produced no landmarks")
	m.seekTimeouts = m.counter("seek_timeouts_total", "Seeks that did not settle within the timeout")
	m.inferenceLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "pose_inference_latency_milliseconds",
		Help:        "Latency of one pose-estimation invocation",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
	m.extractionDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "extraction_duration_seconds",
		Help:        "Wall time of a complete extraction run",
		Buckets:     []float64{1, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: m.customLabels,
	}, []string{"path"})

	m.queueSize = m.gauge("frame_queue_size", "Frames waiting for the render pipeline")
	m.queueCapacity = m.gauge("frame_queue_capacity", "Maximum frames the render pipeline buffers")
	m.queueEnqueued = m.counter("frame_queue_enqueue_total", "Frames accepted by the render pipeline")
	m.queueDequeued = m.counter("frame_queue_dequeue_total", "Frames taken by the render worker")
	m.queueRejected = m.counterVec("frame_queue_rejected_total", "Frames refused by the render pipeline", "reason")
	m.framesPublished = m.counter("frames_published_total", "Skeleton frames handed to the sink")
	m.framesDuplicate = m.counter("frames_duplicate_total", "Frames dropped because their index was already delivered")
	m.sinkErrors = m.counter("sink_errors_total", "Sink publish failures")

	m.httpRequests = m.counterVec("http_requests_total", "Status surface requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "Status surface request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and kind", "component", "error_type")

	m.memoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.goroutineCount = m.gauge("system_goroutines", "Live goroutines")
	m.gcPauseTime = m.gauge("system_gc_pause_milliseconds", "Average GC pause")
}

// SetChannelState records the numeric channel state.
func SetChannelState(state int) {
	if !globalManager.enabled {
		return
	}
	globalManager.channelState.Set(float64(state))
}

// RecordConnectAttempt increments the dial counter.
func RecordConnectAttempt() {
	globalManager.connectAttempts.Inc()
}

// RecordReconnectScheduled counts a planned reconnect for the given attempt number.
func RecordReconnectScheduled(attempt string) {
	globalManager.reconnectsPlanned.WithLabelValues(attempt).Inc()
}

// RecordReconnectExhausted counts a terminal channel failure.
func RecordReconnectExhausted() {
	globalManager.reconnectExhausted.Inc()
}

// RecordMessage counts an inbound message by type.
func RecordMessage(msgType string) {
	globalManager.messagesByType.WithLabelValues(msgType).Inc()
}

// RecordDecodeFailure counts a dropped payload.
func RecordDecodeFailure() {
	globalManager.decodeFailures.Inc()
}

// RecordFrameExtracted counts one frame from the given extraction path.
func RecordFrameExtracted(path string) {
	globalManager.framesExtracted.WithLabelValues(path).Inc()
}

// RecordPersonFailure counts a per-person estimation that produced nothing.
func RecordPersonFailure() {
	globalManager.personFailures.Inc()
}

// RecordSeekTimeout counts a seek that never settled.
func RecordSeekTimeout() {
	globalManager.seekTimeouts.Inc()
}

// RecordInferenceLatency observes one estimator call.
func RecordInferenceLatency(latencyMs float64) {
	globalManager.inferenceLatency.Observe(latencyMs)
}

// RecordExtractionDuration observes a full extraction run.
func RecordExtractionDuration(path string, d time.Duration) {
	globalManager.extractionDuration.WithLabelValues(path).Observe(d.Seconds())
}

// UpdateQueueSize sets the current frame queue depth.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the frame queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueRejected counts a refused frame.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// RecordFramePublished counts a frame handed to the sink.
func RecordFramePublished() {
	globalManager.framesPublished.Inc()
}

// RecordFrameDuplicate counts a dropped duplicate frame.
func RecordFrameDuplicate() {
	globalManager.framesDuplicate.Inc()
}

// RecordSinkError counts a sink failure.
func RecordSinkError() {
	globalManager.sinkErrors.Inc()
}

// RecordHTTPRequest records a status surface request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records a status surface request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.memoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(n int) {
	globalManager.goroutineCount.Set(float64(n))
}

// RecordSystemGCPauseTime sets the average GC pause in milliseconds.
func RecordSystemGCPauseTime(ms float64) {
	globalManager.gcPauseTime.Set(ms)
}

// GetRegistry returns the private Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
