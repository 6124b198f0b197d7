package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the recording pipeline.
type Metrics struct {
	// Chunk pipeline metrics
	ChunksPublished prometheus.Counter
	ChunkDuration   prometheus.Histogram
	BusDrops        prometheus.Counter

	// Disk writer metrics
	ChunksWritten prometheus.Counter
	BytesWritten  prometheus.Counter
	WriteDuration prometheus.Histogram
	WriteErrors   prometheus.Counter

	// Streaming transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptUpdates      prometheus.Counter

	// Session lifecycle metrics
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsCancelled prometheus.Counter
	SessionsErrored   prometheus.Counter
	SessionDuration   prometheus.Histogram
	SessionActive     prometheus.Gauge
	RecordingSeconds  prometheus.Gauge

	// Audio level gauges (dBFS)
	MicLevel    prometheus.Gauge
	SystemLevel prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics on the given registerer. Tests pass
// a fresh registry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChunksPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_chunks_published_total",
			Help: "Total number of audio chunks published on the stream bus",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whispertype_chunk_duration_seconds",
			Help:    "Duration of published audio chunks",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),
		BusDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_bus_drops_total",
			Help: "Total number of items dropped for slow bus subscribers",
		}),

		ChunksWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_chunks_written_total",
			Help: "Total number of chunk WAV files written to disk",
		}),
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_bytes_written_total",
			Help: "Total bytes of chunk WAV data written, headers included",
		}),
		WriteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whispertype_chunk_write_duration_seconds",
			Help:    "Time spent encoding and writing one chunk",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),
		WriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_chunk_write_errors_total",
			Help: "Total number of failed chunk writes",
		}),

		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_transcription_requests_total",
			Help: "Total number of transcription windows submitted",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_transcription_successes_total",
			Help: "Total number of successfully transcribed windows",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_transcription_failures_total",
			Help: "Total number of failed transcription windows",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whispertype_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_transcript_updates_total",
			Help: "Total number of transcript updates appended",
		}),

		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_sessions_completed_total",
			Help: "Total number of recording sessions completed",
		}),
		SessionsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_sessions_cancelled_total",
			Help: "Total number of recording sessions cancelled",
		}),
		SessionsErrored: factory.NewCounter(prometheus.CounterOpts{
			Name: "whispertype_sessions_errored_total",
			Help: "Total number of recording sessions that ended in error",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whispertype_session_duration_seconds",
			Help:    "Duration of completed recording sessions",
			Buckets: prometheus.ExponentialBuckets(30, 2, 9), // 30s to ~4.5 hours
		}),
		SessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "whispertype_session_active",
			Help: "1 while a recording session is active, 0 otherwise",
		}),
		RecordingSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "whispertype_recording_seconds",
			Help: "Seconds of audio ingested by the current session",
		}),

		MicLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "whispertype_mic_level_dbfs",
			Help: "Most recent microphone RMS level in dBFS",
		}),
		SystemLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "whispertype_system_level_dbfs",
			Help: "Most recent system-audio RMS level in dBFS",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whispertype_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whispertype_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whispertype_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunkPublished records one chunk accepted by the bus.
func (m *Metrics) RecordChunkPublished(durationSeconds float64) {
	m.ChunksPublished.Inc()
	m.ChunkDuration.Observe(durationSeconds)
}

// RecordBusDrop increments the slow-subscriber drop counter.
func (m *Metrics) RecordBusDrop() {
	m.BusDrops.Inc()
}

// RecordChunkWritten records one chunk WAV file landing on disk.
func (m *Metrics) RecordChunkWritten(sizeBytes int, writeSeconds float64) {
	m.ChunksWritten.Inc()
	m.BytesWritten.Add(float64(sizeBytes))
	m.WriteDuration.Observe(writeSeconds)
}

// RecordWriteError increments the failed-write counter.
func (m *Metrics) RecordWriteError() {
	m.WriteErrors.Inc()
}

// RecordTranscriptionRequest increments the submitted-windows counter.
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successfully transcribed window.
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed window.
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptUpdate increments the appended-updates counter.
func (m *Metrics) RecordTranscriptUpdate() {
	m.TranscriptUpdates.Inc()
}

// RecordSessionStarted marks a session as started and active.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
	m.SessionActive.Set(1)
}

// RecordSessionCompleted records a completed session and its duration.
func (m *Metrics) RecordSessionCompleted(durationSeconds float64) {
	m.SessionsCompleted.Inc()
	m.SessionDuration.Observe(durationSeconds)
	m.SessionActive.Set(0)
	m.RecordingSeconds.Set(0)
}

// RecordSessionCancelled records a cancelled session.
func (m *Metrics) RecordSessionCancelled() {
	m.SessionsCancelled.Inc()
	m.SessionActive.Set(0)
	m.RecordingSeconds.Set(0)
}

// RecordSessionErrored records a session that ended in error.
func (m *Metrics) RecordSessionErrored() {
	m.SessionsErrored.Inc()
	m.SessionActive.Set(0)
}

// SetRecordingSeconds mirrors the current session's ingested duration.
func (m *Metrics) SetRecordingSeconds(seconds float64) {
	m.RecordingSeconds.Set(seconds)
}

// SetAudioLevels updates the level gauges. Infinite values (silence)
// clamp to the gauge floor rather than poisoning the scrape.
func (m *Metrics) SetAudioLevels(micDB, systemDB float64) {
	m.MicLevel.Set(clampDB(micDB))
	m.SystemLevel.Set(clampDB(systemDB))
}

const silenceFloorDB = -120

func clampDB(v float64) float64 {
	if math.IsInf(v, -1) || math.IsNaN(v) || v < silenceFloorDB {
		return silenceFloorDB
	}
	return v
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
