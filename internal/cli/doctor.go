package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/capture"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/catalog"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local environment for recording",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	failures := 0
	check := func(name string, err error) {
		if err != nil {
			failures++
			fmt.Printf("FAIL  %s: %v\n", name, err)
			return
		}
		fmt.Printf("ok    %s\n", name)
	}
	warn := func(name, message string) {
		fmt.Printf("warn  %s: %s\n", name, message)
	}

	cfg, err := loadConfig()
	check("configuration", err)
	if err != nil {
		// Nothing below is meaningful without a config.
		return fmt.Errorf("%d check(s) failed", failures)
	}

	logger := initLogger(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"})

	dev := capture.NewFFmpegDevice(capture.FFmpegConfig{
		Backend:    cfg.Capture.Backend,
		Input:      cfg.Capture.MicInput,
		BinaryPath: cfg.Capture.FFmpegPath,
	}, capture.ChannelMicrophone, logger)
	check("ffmpeg binary", dev.CheckBinary())

	check("recordings directory", checkWritableDir(cfg.Storage.RecordingsDir))

	check("session catalog", checkCatalog(cfg.Storage.CatalogPath))

	if cfg.Transcription.Endpoint == "" {
		check("transcription endpoint", fmt.Errorf("not configured"))
	} else {
		check("transcription endpoint", nil)
	}
	if cfg.Transcription.APIKey == "" {
		warn("transcription api key", "not set; fine for a local stub, required for hosted APIs")
	}

	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	fmt.Println("All checks passed.")
	return nil
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}

func checkCatalog(path string) error {
	cat, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer cat.Close()
	_, err = cat.SessionCount()
	return err
}
