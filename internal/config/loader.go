package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults mirrored into a zero-value config before validation. Kept in one
// place so example configs and tests agree with the loader.
const (
	DefaultListenAddr          = ":8090"
	DefaultCaptureSampleRate   = 44100
	DefaultCaptureChannels     = 1
	DefaultFramesPerBuffer     = 512
	DefaultOutputSampleRate    = 16000
	DefaultOutputBits          = 16
	DefaultOutputChannels      = 1
	DefaultWhisperSampleRate   = 16000
	DefaultMinSamples          = 16000
	DefaultMinDurationSeconds  = 1.0
	DefaultLanguage            = "en"
	DefaultChannelBufferSize   = 16
	DefaultEnqueueTimeoutMs    = 250
	DefaultDrainTimeoutMs      = 5000
	DefaultVADEngine           = VADEnergy
	DefaultActivationThreshold = 0.6
	DefaultHangoverMs          = 500
	DefaultPrerollMs           = 300
	DefaultFrameSizeMs         = 30
	DefaultTriggerWord         = "hey computer"
	DefaultMinConfidence       = 0.7
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with the documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	cap := &cfg.Audio.Capture
	if cap.SampleRate == 0 {
		cap.SampleRate = DefaultCaptureSampleRate
	}
	if cap.Channels == 0 {
		cap.Channels = DefaultCaptureChannels
	}
	if cap.FramesPerBuffer == 0 {
		cap.FramesPerBuffer = DefaultFramesPerBuffer
	}

	rec := &cfg.Audio.Recording
	if rec.OutputSampleRate == 0 {
		rec.OutputSampleRate = DefaultOutputSampleRate
	}
	if rec.OutputBitsPerSample == 0 {
		rec.OutputBitsPerSample = DefaultOutputBits
	}
	if rec.OutputChannels == 0 {
		rec.OutputChannels = DefaultOutputChannels
	}

	tr := &cfg.Audio.Transcription
	if tr.Language == "" {
		tr.Language = DefaultLanguage
	}
	if tr.WhisperSampleRate == 0 {
		tr.WhisperSampleRate = DefaultWhisperSampleRate
	}
	if tr.MinTranscriptionSamples == 0 {
		tr.MinTranscriptionSamples = DefaultMinSamples
	}
	if tr.MinDurationSeconds == 0 {
		tr.MinDurationSeconds = DefaultMinDurationSeconds
	}

	perf := &cfg.Audio.Performance
	if perf.ChannelBufferSize == 0 {
		perf.ChannelBufferSize = DefaultChannelBufferSize
	}
	if perf.EnqueueTimeoutMs == 0 {
		perf.EnqueueTimeoutMs = DefaultEnqueueTimeoutMs
	}
	if perf.DrainTimeoutMs == 0 {
		perf.DrainTimeoutMs = DefaultDrainTimeoutMs
	}

	vad := &cfg.VAD
	if vad.Engine == "" {
		vad.Engine = DefaultVADEngine
	}
	if vad.ActivationThreshold == 0 {
		vad.ActivationThreshold = DefaultActivationThreshold
	}
	if vad.HangoverMs == 0 {
		vad.HangoverMs = DefaultHangoverMs
	}
	if vad.PrerollMs == 0 {
		vad.PrerollMs = DefaultPrerollMs
	}
	if vad.FrameSizeMs == 0 {
		vad.FrameSizeMs = DefaultFrameSizeMs
	}

	cmds := &cfg.Commands
	if cmds.TriggerWord == "" {
		cmds.TriggerWord = DefaultTriggerWord
	}
	if cmds.MinConfidence == 0 {
		cmds.MinConfidence = DefaultMinConfidence
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	cap := cfg.Audio.Capture
	if cap.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.capture.sample_rate %d must be positive", cap.SampleRate))
	}
	if cap.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.capture.channels %d must be positive", cap.Channels))
	}
	if cap.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.capture.frames_per_buffer %d must be positive", cap.FramesPerBuffer))
	}

	rec := cfg.Audio.Recording
	if rec.SaveToFile && rec.OutputPath == "" {
		errs = append(errs, errors.New("audio.recording.output_path is required when save_to_file is true"))
	}
	if rec.OutputBitsPerSample != 16 && rec.OutputBitsPerSample != 24 {
		errs = append(errs, fmt.Errorf("audio.recording.output_bits_per_sample %d is invalid; valid values: 16, 24", rec.OutputBitsPerSample))
	}
	if rec.OutputChannels <= 0 {
		errs = append(errs, fmt.Errorf("audio.recording.output_channels %d must be positive", rec.OutputChannels))
	}
	if rec.SaveToFile && rec.OutputSampleRate != cfg.Audio.Transcription.WhisperSampleRate {
		// The recorded stream is the post-resample pipeline audio, so the
		// WAV rate is pinned to the transcription rate.
		slog.Warn("recording sample rate differs from pipeline rate; the WAV is written at the pipeline rate",
			"output_sample_rate", rec.OutputSampleRate,
			"whisper_sample_rate", cfg.Audio.Transcription.WhisperSampleRate,
		)
	}

	tr := cfg.Audio.Transcription
	if tr.ModelPath == "" {
		errs = append(errs, errors.New("audio.transcription.model_path is required"))
	}
	if tr.WhisperSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.transcription.whisper_sample_rate %d must be positive", tr.WhisperSampleRate))
	}
	if tr.MinTranscriptionSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.transcription.min_transcription_samples %d must not be negative", tr.MinTranscriptionSamples))
	}
	if tr.MinDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("audio.transcription.min_duration_seconds %.2f must not be negative", tr.MinDurationSeconds))
	}

	perf := cfg.Audio.Performance
	if perf.ChannelBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.performance.channel_buffer_size %d must be positive", perf.ChannelBufferSize))
	}
	if perf.EnqueueTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("audio.performance.enqueue_timeout_ms %d must not be negative", perf.EnqueueTimeoutMs))
	}
	if perf.DrainTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("audio.performance.drain_timeout_ms %d must not be negative", perf.DrainTimeoutMs))
	}

	vad := cfg.VAD
	if !vad.Engine.IsValid() {
		errs = append(errs, fmt.Errorf("vad.engine %q is invalid; valid values: energy, webrtc, silero", vad.Engine))
	}
	if vad.Engine == VADSilero && vad.ModelPath == "" {
		errs = append(errs, errors.New("vad.model_path is required when vad.engine is silero"))
	}
	if vad.Engine == VADWebRTC {
		if vad.Mode < 0 || vad.Mode > 3 {
			errs = append(errs, fmt.Errorf("vad.mode %d is out of range [0, 3]", vad.Mode))
		}
		switch vad.FrameSizeMs {
		case 10, 20, 30:
		default:
			errs = append(errs, fmt.Errorf("vad.frame_size_ms %d is invalid for the webrtc engine; valid values: 10, 20, 30", vad.FrameSizeMs))
		}
	}
	if vad.ActivationThreshold < 0 || vad.ActivationThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.activation_threshold %.2f is out of range [0, 1]", vad.ActivationThreshold))
	}
	if vad.HangoverMs < 0 {
		errs = append(errs, fmt.Errorf("vad.hangover_ms %d must not be negative", vad.HangoverMs))
	}
	if vad.PrerollMs < 0 {
		errs = append(errs, fmt.Errorf("vad.preroll_ms %d must not be negative", vad.PrerollMs))
	}
	if vad.FrameSizeMs <= 0 {
		errs = append(errs, fmt.Errorf("vad.frame_size_ms %d must be positive", vad.FrameSizeMs))
	}

	cmds := cfg.Commands
	if cmds.TriggerWord == "" {
		errs = append(errs, errors.New("commands.trigger_word must not be empty"))
	}
	if cmds.MinConfidence < 0 || cmds.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("commands.min_confidence %.2f is out of range [0, 1]", cmds.MinConfidence))
	}

	return errors.Join(errs...)
}
