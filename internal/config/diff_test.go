package config_test

import (
	"testing"

	"github.com/sotto-voice/sotto/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Audio.Transcription.ModelPath = "m.bin"
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	if d := config.Diff(old, new); !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged should be true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if d.CommandsChanged {
		t.Error("CommandsChanged should be false")
	}
}

func TestDiff_Commands(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Commands.TriggerWord = "okay sotto"
	new.Commands.MinConfidence = 0.9

	d := config.Diff(old, new)
	if !d.CommandsChanged {
		t.Fatal("CommandsChanged should be true")
	}
	if d.NewCommands.TriggerWord != "okay sotto" {
		t.Errorf("NewCommands.TriggerWord: got %q, want %q", d.NewCommands.TriggerWord, "okay sotto")
	}
	if d.LogLevelChanged {
		t.Error("LogLevelChanged should be false")
	}
}

func TestDiff_RestartOnlyFieldsIgnored(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Audio.Capture.SampleRate = 48000
	new.VAD.Engine = config.VADWebRTC

	if d := config.Diff(old, new); !d.Empty() {
		t.Errorf("device/engine changes are restart-only and should not appear in the diff, got %+v", d)
	}
}
