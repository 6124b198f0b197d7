// whisper-stub is a local development stand-in for a Whisper-style
// transcription API. It accepts the multipart requests the whispertype
// client sends and returns canned text sized to the submitted audio, so
// the full recording pipeline can run without a real model.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/transcription"
)

var phrases = []string{
	"thanks everyone for joining today",
	"let's walk through the agenda",
	"the rollout is on track for next week",
	"we still need sign-off from the platform team",
	"action item noted, I'll follow up by Friday",
	"any questions before we move on",
}

type stubServer struct {
	logger *slog.Logger
	delay  time.Duration
}

func (s *stubServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	requestID := r.FormValue("request_id")
	language := r.FormValue("language")
	prompt := r.FormValue("prompt")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	duration, err := audio.GetWAVDuration(audioData)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid WAV payload: %v", err), http.StatusBadRequest)
		return
	}

	s.logger.Info("Transcription request",
		slog.String("request_id", requestID),
		slog.String("filename", header.Filename),
		slog.Int("bytes", len(audioData)),
		slog.Float64("duration", duration),
		slog.String("language", language),
		slog.Int("prompt_words", len(strings.Fields(prompt))),
	)

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	response := transcription.Response{
		RequestID:   requestID,
		Text:        cannedText(duration),
		Language:    language,
		Duration:    duration,
		ProcessedAt: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// cannedText returns roughly one phrase per two seconds of audio.
func cannedText(duration float64) string {
	n := int(duration) / 2
	if n < 1 {
		n = 1
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, phrases[i%len(phrases)])
	}
	return strings.Join(out, ". ") + "."
}

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "simulated processing delay per request")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	s := &stubServer{logger: logger, delay: *delay}
	http.HandleFunc("/transcribe", s.handleTranscribe)

	logger.Info("Stub transcription server starting",
		slog.String("address", *addr),
		slog.String("endpoint", fmt.Sprintf("http://localhost%s/transcribe", *addr)),
	)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
