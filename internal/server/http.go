package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/config"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/coordinator"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/events"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/metrics"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/transcription"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/version"
)

// ASRStatsProvider exposes transcription client counters for the
// monitor endpoints. Nil when the engine has no stats to offer.
type ASRStatsProvider interface {
	GetStats() transcription.ClientStats
}

// HTTPServer provides the monitor HTTP API: session state, live
// transcript, pipeline statistics, Prometheus metrics, and a websocket
// lifecycle event feed.
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	coord   *coordinator.Coordinator
	events  *events.Bus
	asr     ASRStatsProvider
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the monitor server. asr may be nil.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, coord *coordinator.Coordinator, evBus *events.Bus,
	asr ASRStatsProvider, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		coord:     coord,
		events:    evBus,
		asr:       asr,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes.
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/session", h.withMetrics("/session", h.handleSession))
	mux.HandleFunc("/transcript", h.withMetrics("/transcript", h.handleTranscript))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Websocket feed; the upgrade path manages its own lifecycle.
	mux.HandleFunc("/events", h.handleEvents)

	// Prometheus metrics endpoint (not itself measured).
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection.
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server.
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting monitor HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping monitor HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint.
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	stats := h.coord.GetStats()

	sessionState := "idle"
	if snap, ok := h.coord.Snapshot(); ok {
		sessionState = snap.State.String()
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "whispertype",
			"version": version.Version,
		},
		"components": map[string]interface{}{
			"coordinator": map[string]interface{}{
				"session_state": sessionState,
			},
			"bus": map[string]interface{}{
				"active":           stats.Bus.Active,
				"chunks_published": stats.Bus.ChunksPublished,
				"dropped":          stats.Bus.Dropped,
			},
			"writer": map[string]interface{}{
				"active":         stats.Writer.Active,
				"chunks_written": stats.Writer.ChunksWritten,
			},
		},
	}

	if h.asr != nil {
		asrStats := h.asr.GetStats()
		health["components"].(map[string]interface{})["transcription"] = map[string]interface{}{
			"total_requests":  asrStats.TotalRequests,
			"success_rate":    asrStats.SuccessRate,
			"active_requests": asrStats.ActiveRequests,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSession implements the /session endpoint: the current session
// snapshot, 404 when none exists.
func (h *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, ok := h.coord.Snapshot()
	if !ok {
		http.Error(w, "No active session", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// handleTranscript implements the /transcript endpoint: the current
// partial transcript as JSON, or rendered markdown with
// ?format=markdown.
func (h *HTTPServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		md, ok := h.coord.TranscriptMarkdown()
		if !ok {
			http.Error(w, "No active session", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		fmt.Fprint(w, md)
		return
	}

	updates := h.coord.TranscriptUpdates()
	if updates == nil {
		http.Error(w, "No active session", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"update_count": len(updates),
		"timestamp":    time.Now().UTC(),
		"updates":      updates,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleStats implements the /stats endpoint.
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"pipeline":  h.coord.GetStats(),
	}
	if h.asr != nil {
		stats["transcription"] = h.asr.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleConfig implements the /config endpoint, omitting credentials.
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitizedConfig := map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate":    h.config.Audio.SampleRate,
			"chunk_duration": h.config.Audio.ChunkDuration,
			"mic_weight":     h.config.Audio.MicWeight,
			"system_weight":  h.config.Audio.SystemWeight,
			"normalize":      h.config.Audio.Normalize,
		},
		"capture": map[string]interface{}{
			"backend":      h.config.Capture.Backend,
			"mic_input":    h.config.Capture.MicInput,
			"system_input": h.config.Capture.SystemInput,
			"frame_size":   h.config.Capture.FrameSize,
		},
		"transcriber": map[string]interface{}{
			"profile":             h.config.Transcriber.Profile,
			"buffer_duration":     h.config.Transcriber.BufferDuration,
			"processing_interval": h.config.Transcriber.ProcessingInterval,
			"context_word_count":  h.config.Transcriber.ContextWordCount,
		},
		"transcription": map[string]interface{}{
			"endpoint":       h.config.Transcription.Endpoint,
			"model":          h.config.Transcription.Model,
			"language":       h.config.Transcription.Language,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			"output_format":  h.config.Transcription.OutputFormat,
			// API key intentionally omitted.
		},
		"storage": map[string]interface{}{
			"recordings_dir": h.config.Storage.RecordingsDir,
			"catalog_path":   h.config.Storage.CatalogPath,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation.
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "whispertype monitor",
		"version": version.Version,
		"endpoints": map[string]interface{}{
			"GET /":           "API documentation",
			"GET /health":     "Service health check",
			"GET /session":    "Current session snapshot (404 when idle)",
			"GET /transcript": "Partial transcript (?format=markdown for rendered)",
			"GET /stats":      "Pipeline statistics",
			"GET /config":     "Sanitized configuration",
			"GET /metrics":    "Prometheus metrics",
			"GET /events":     "Websocket lifecycle event feed",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
