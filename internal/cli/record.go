package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/bus"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/capture"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/catalog"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/config"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/coordinator"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/diskwriter"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/events"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/metrics"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/recorder"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/server"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/transcript"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/transcription"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/version"
)

var recordSource string

var recordCmd = &cobra.Command{
	Use:   "record [title]",
	Short: "Record a meeting with a live transcript",
	Long: `Record starts a session: audio is captured, chunked to disk under the
recordings directory, and transcribed live. Ctrl+C stops the recording
and finalizes the session; a second Ctrl+C during processing cancels.`,
	Args: cobra.ArbitraryArgs,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordSource, "source", "s", "both",
		"audio source: microphone, system, or both")
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Logging)

	source, err := audio.ParseSource(recordSource)
	if err != nil {
		return err
	}

	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		title = "Meeting " + time.Now().Format("2006-01-02 15:04")
	}

	logger.Info("Service starting",
		slog.String("service", "whispertype"),
		slog.String("version", version.Version),
		slog.String("source", source.String()),
		slog.String("recordings_dir", cfg.Storage.RecordingsDir),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
	)

	micDev, systemDev := buildDevices(cfg, source, logger)
	for _, dev := range []capture.Device{micDev, systemDev} {
		checker, ok := dev.(interface{ CheckBinary() error })
		if !ok {
			continue
		}
		if err := checker.CheckBinary(); err != nil {
			return err
		}
		// Both devices share one binary path; one check is enough.
		break
	}

	client, err := transcription.NewClient(transcription.ClientConfig{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Model:         cfg.Transcription.Model,
		Language:      cfg.Transcription.Language,
		Temperature:   cfg.Transcription.Temperature,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
		OutputFormat:  cfg.Transcription.OutputFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to create transcription client: %w", err)
	}
	defer client.Close()

	cat, err := catalog.Open(cfg.Storage.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to open session catalog: %w", err)
	}
	defer cat.Close()

	appMetrics := metrics.NewMetrics()
	streamBus := bus.New(logger)
	evBus := events.NewBus(logger)
	writer := diskwriter.NewWriter(cfg.Storage.RecordingsDir, logger)

	coord := coordinator.New(coordinator.Deps{
		Logger:  logger,
		Metrics: appMetrics,
		Bus:     streamBus,
		Events:  evBus,
		Writer:  writer,
		Engine:  client,
		Catalog: cat,
		Mic:     micDev,
		System:  systemDev,
		RecorderConfig: recorder.Config{
			SampleRate:    cfg.Audio.SampleRate,
			ChunkDuration: cfg.Audio.GetChunkDuration(),
			MicWeight:     cfg.Audio.MicWeight,
			SystemWeight:  cfg.Audio.SystemWeight,
			Normalize:     cfg.Audio.Normalize,
		},
		ProcessorConfig: processorConfig(cfg),
		OnUpdate: func(update transcript.TranscriptUpdate) {
			fmt.Printf("[%s] %s\n", update.FormattedTimestamp(), update.Text)
		},
	})

	// Completion fires on Ctrl+C stops and on the automatic stop at the
	// duration cap alike; warnings are surfaced to the terminal.
	done := make(chan struct{}, 1)
	evSub := evBus.Subscribe(func(ev events.Event) {
		switch ev.Type {
		case events.TypeDurationWarning:
			fmt.Println("** Approaching the maximum recording duration; the session will stop automatically. **")
		case events.TypeProcessingComplete:
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	defer evSub.Cancel()

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, coord, evBus, client, appMetrics)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start monitor server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Stop(shutdownCtx); err != nil {
				logger.Error("Error stopping monitor server", slog.String("error", err.Error()))
			}
		}()
	}

	if err := coord.StartRecording(cmd.Context(), title, source); err != nil {
		return err
	}

	fmt.Printf("Recording %q from %s. Press Ctrl+C to stop.\n", title, source)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received stop signal", slog.String("signal", sig.String()))
		fmt.Println("Stopping recording, finalizing session...")

		// A second signal during finalization cancels the session.
		go func() {
			<-sigChan
			fmt.Println("Cancelling recording, discarding session...")
			coord.CancelRecording()
		}()

		summary, err := coord.StopRecording(context.Background())
		if err != nil {
			return err
		}
		printSummary(summary)

	case <-done:
		// The coordinator stopped itself at the duration cap and has
		// already finalized the session.
		fmt.Println("Recording stopped automatically at the maximum duration.")
		if rec, err := cat.GetSession(latestSessionID(cat)); err == nil && rec != nil {
			fmt.Printf("Session %s saved to %s\n", rec.ID, rec.SessionDir)
		}
	}

	return nil
}

// buildDevices creates the capture devices the requested source needs.
func buildDevices(cfg *config.Config, source audio.Source, logger *slog.Logger) (mic, system capture.Device) {
	base := capture.FFmpegConfig{
		Backend:        cfg.Capture.Backend,
		SampleRate:     cfg.Audio.SampleRate,
		FrameSize:      cfg.Capture.FrameSize,
		BinaryPath:     cfg.Capture.FFmpegPath,
		StartupTimeout: cfg.Capture.GetStartupTimeout(),
	}

	if source == audio.SourceMicrophone || source == audio.SourceBoth {
		micCfg := base
		micCfg.Input = cfg.Capture.MicInput
		mic = capture.NewFFmpegDevice(micCfg, capture.ChannelMicrophone, logger)
	}
	if source == audio.SourceSystem || source == audio.SourceBoth {
		sysCfg := base
		sysCfg.Input = cfg.Capture.SystemInput
		system = capture.NewFFmpegDevice(sysCfg, capture.ChannelSystem, logger)
	}
	return mic, system
}

// processorConfig maps the configured profile onto processor settings,
// with explicit values overriding the profile defaults.
func processorConfig(cfg *config.Config) transcription.ProcessorConfig {
	var pc transcription.ProcessorConfig
	switch cfg.Transcriber.Profile {
	case "fast":
		pc = transcription.FastProcessorConfig()
	default:
		pc = transcription.DefaultProcessorConfig()
	}

	if cfg.Transcriber.BufferDuration > 0 {
		pc.BufferDuration = cfg.Transcriber.GetBufferDuration()
	}
	if cfg.Transcriber.ProcessingInterval > 0 {
		pc.ProcessingInterval = cfg.Transcriber.GetProcessingInterval()
	}
	if cfg.Transcriber.ContextWordCount > 0 {
		pc.ContextWordCount = cfg.Transcriber.ContextWordCount
	}
	pc.SampleRate = cfg.Audio.SampleRate
	return pc
}

func printSummary(summary *coordinator.Summary) {
	fmt.Println()
	fmt.Println("Recording complete.")
	fmt.Printf("  Session:    %s\n", summary.SessionID)
	fmt.Printf("  Title:      %s\n", summary.Title)
	fmt.Printf("  Duration:   %s\n", formatDuration(summary.DurationSeconds))
	fmt.Printf("  Chunks:     %d (%d bytes)\n", summary.ChunkCount, summary.BytesWritten)
	fmt.Printf("  Directory:  %s\n", summary.SessionDir)
	fmt.Printf("  Transcript: %s\n", summary.TranscriptPath)
	if summary.Transcript != "" {
		fmt.Println()
		fmt.Println(summary.Transcript)
	}
}

func formatDuration(seconds float64) string {
	return time.Duration(seconds * float64(time.Second)).Truncate(time.Second).String()
}

// latestSessionID returns the most recently finished session id, empty
// when the catalog is empty or unreadable.
func latestSessionID(cat *catalog.Catalog) string {
	recs, err := cat.ListSessions(1)
	if err != nil || len(recs) == 0 {
		return ""
	}
	return recs[0].ID
}
