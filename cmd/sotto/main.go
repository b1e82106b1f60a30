// Command sotto is the main entry point for the sotto voice transcription
// daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sotto-voice/sotto/internal/config"
	"github.com/sotto-voice/sotto/internal/health"
	"github.com/sotto-voice/sotto/internal/observe"
	"github.com/sotto-voice/sotto/internal/pipeline"
	"github.com/sotto-voice/sotto/internal/server"
	"github.com/sotto-voice/sotto/pkg/audio/capture"
	"github.com/sotto-voice/sotto/pkg/provider/stt"
	"github.com/sotto-voice/sotto/pkg/provider/stt/whisper"
	"github.com/sotto-voice/sotto/pkg/provider/vad"
	"github.com/sotto-voice/sotto/pkg/provider/vad/energy"
	"github.com/sotto-voice/sotto/pkg/provider/vad/silero"
	"github.com/sotto-voice/sotto/pkg/provider/vad/webrtc"
)

// version is stamped by the build (-ldflags "-X main.version=...").
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "list audio input devices and exit")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sotto: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sotto: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so a config reload can adjust it without
	// swapping the handler.
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("sotto starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "sotto",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Engine registry ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinEngines(reg)

	vadEngine, err := reg.CreateVAD(cfg.VAD)
	if err != nil {
		slog.Error("failed to create vad engine", "err", err, "engine", cfg.VAD.Engine)
		return 1
	}

	sttEngine, err := reg.CreateSTT("whisper", cfg.Audio.Transcription)
	if err != nil {
		slog.Error("failed to load transcription model", "err", err, "model", cfg.Audio.Transcription.ModelPath)
		return 1
	}
	defer func() {
		if err := sttEngine.Close(); err != nil {
			slog.Warn("closing transcription engine failed", "err", err)
		}
	}()
	slog.Info("transcription model loaded", "model", cfg.Audio.Transcription.ModelPath)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	newDevice := func() (capture.Device, error) {
		cc := cfg.Audio.Capture
		return capture.NewPortAudio(capture.Config{
			DeviceName:      cc.Device,
			SampleRate:      cc.SampleRate,
			Channels:        cc.Channels,
			FramesPerBuffer: cc.FramesPerBuffer,
		}), nil
	}

	hub := server.NewHub()
	ctrl := pipeline.New(cfg, newDevice, vadEngine, sttEngine, hub, metrics)

	checks := []health.Checker{
		{Name: "whisper_model", Check: fileCheck(cfg.Audio.Transcription.ModelPath)},
	}
	if cfg.VAD.Engine == config.VADSilero {
		checks = append(checks, health.Checker{Name: "vad_model", Check: fileCheck(cfg.VAD.ModelPath)})
	}
	srv := server.New(ctrl, hub, metrics, checks...)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(config.Diff(old, new), level, ctrl)
	})
	if err != nil {
		// Load succeeded moments ago, so this is unexpected but not fatal.
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("http server error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}

	// Stop the recording session, if one is active, so in-flight audio is
	// drained and any session recording is finalized.
	if err := ctrl.Stop(shutdownCtx); err != nil && !errors.Is(err, pipeline.ErrNotRecording) {
		slog.Warn("pipeline stop error", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

// ── Engine wiring ─────────────────────────────────────────────────────────────

// registerBuiltinEngines wires the VAD and transcription backends that ship
// with sotto into reg.
func registerBuiltinEngines(reg *config.Registry) {
	reg.RegisterVAD(config.VADEnergy, func(cfg config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})
	reg.RegisterVAD(config.VADWebRTC, func(cfg config.VADConfig) (vad.Engine, error) {
		return webrtc.New(cfg.Mode), nil
	})
	reg.RegisterVAD(config.VADSilero, func(cfg config.VADConfig) (vad.Engine, error) {
		return silero.New(cfg.ModelPath)
	})

	reg.RegisterSTT("whisper", func(cfg config.TranscriptionConfig) (stt.Engine, error) {
		return whisper.New(cfg.ModelPath, whisper.WithLanguage(cfg.Language))
	})
}

// applyReload applies the hot-reloadable subset of a config change.
func applyReload(diff config.ConfigDiff, level *slog.LevelVar, ctrl *pipeline.Controller) {
	if diff.Empty() {
		return
	}
	if diff.LogLevelChanged {
		level.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.CommandsChanged {
		ctrl.SetCommandPolicy(diff.NewCommands)
		slog.Info("command policy changed",
			"trigger_word", diff.NewCommands.TriggerWord,
			"min_confidence", diff.NewCommands.MinConfidence,
		)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// fileCheck returns a readiness check that fails when path does not exist.
func fileCheck(path string) func(context.Context) error {
	return func(context.Context) error {
		_, err := os.Stat(path)
		return err
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printDevices lists the host's audio input devices on stdout.
func printDevices() int {
	devices, err := capture.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sotto: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Println("no audio input devices found")
		return 0
	}
	for _, dev := range devices {
		marker := " "
		if dev.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %-40s %d ch @ %.0f Hz\n", marker, dev.Name, dev.MaxInputChannels, dev.DefaultSampleRate)
	}
	fmt.Println("\n* = default input device")
	return 0
}
