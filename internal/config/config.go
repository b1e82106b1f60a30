// Package config provides the configuration schema, loader, and engine
// registry for the sotto transcription daemon.
package config

import "time"

// LogLevel controls log verbosity for the sotto daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// VADEngine selects the voice activity detection backend.
type VADEngine string

const (
	// VADEnergy uses a plain RMS energy classifier. No external assets.
	VADEnergy VADEngine = "energy"

	// VADWebRTC uses the WebRTC voice activity detector.
	VADWebRTC VADEngine = "webrtc"

	// VADSilero uses the Silero neural VAD via ONNX Runtime. Requires
	// vad.model_path.
	VADSilero VADEngine = "silero"
)

// IsValid reports whether e is a recognised VAD engine name.
func (e VADEngine) IsValid() bool {
	switch e {
	case VADEnergy, VADWebRTC, VADSilero:
		return true
	}
	return false
}

// Config is the root configuration structure for sotto.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	VAD      VADConfig      `yaml:"vad"`
	Commands CommandsConfig `yaml:"commands"`
}

// ServerConfig holds network and logging settings for the control server.
type ServerConfig struct {
	// ListenAddr is the TCP address the control/event server listens on
	// (e.g., ":8090").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig groups everything about the audio path: capture, optional
// session recording, transcription, and performance tuning.
type AudioConfig struct {
	Capture       CaptureConfig       `yaml:"capture"`
	Recording     RecordingConfig     `yaml:"recording"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Performance   PerformanceConfig   `yaml:"performance"`
}

// CaptureConfig describes the input device and its native format.
type CaptureConfig struct {
	// Device selects the input device by name. Empty selects the system
	// default input device.
	Device string `yaml:"device"`

	// SampleRate is the capture rate in Hz requested from the device.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the channel count requested from the device.
	Channels int `yaml:"channels"`

	// FramesPerBuffer is the number of frames delivered per device callback.
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// RecordingConfig controls the optional WAV recording of the session audio.
// The recorded stream is the post-resample pipeline audio, not the raw
// device stream.
type RecordingConfig struct {
	// OutputPath is the WAV file written when SaveToFile is true.
	OutputPath string `yaml:"output_path"`

	// SaveToFile enables session recording.
	SaveToFile bool `yaml:"save_to_file"`

	// OutputSampleRate is the WAV sample rate in Hz.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// OutputBitsPerSample is the WAV sample depth. 16 or 24.
	OutputBitsPerSample int `yaml:"output_bits_per_sample"`

	// OutputChannels is the WAV channel count. Mono pipeline audio is
	// duplicated across channels when greater than 1.
	OutputChannels int `yaml:"output_channels"`
}

// TranscriptionConfig configures the speech-to-text engine and segment
// admission thresholds.
type TranscriptionConfig struct {
	// ModelPath is the whisper.cpp model file (ggml format).
	ModelPath string `yaml:"model_path"`

	// Language is the BCP-47 language code passed to the model.
	Language string `yaml:"language"`

	// WhisperSampleRate is the model's fixed input rate in Hz. The
	// resampler targets this rate.
	WhisperSampleRate int `yaml:"whisper_sample_rate"`

	// MinTranscriptionSamples is the minimum sample count a segment must
	// carry to be transcribed. Shorter segments are discarded.
	MinTranscriptionSamples int `yaml:"min_transcription_samples"`

	// MinDurationSeconds is the minimum segment duration. Both this and
	// MinTranscriptionSamples must pass for a segment to be admitted.
	MinDurationSeconds float64 `yaml:"min_duration_seconds"`
}

// PerformanceConfig tunes queueing and shutdown behaviour.
type PerformanceConfig struct {
	// ChannelBufferSize is the capacity of the segment queue between the
	// segmenter and the inference dispatcher.
	ChannelBufferSize int `yaml:"channel_buffer_size"`

	// EnqueueTimeoutMs bounds how long a segment push may wait on a full
	// queue before the oldest queued segment is evicted.
	EnqueueTimeoutMs int `yaml:"enqueue_timeout_ms"`

	// DrainTimeoutMs bounds how long Stop waits for in-flight
	// transcription to finish before giving up.
	DrainTimeoutMs int `yaml:"drain_timeout_ms"`
}

// VADConfig configures voice activity detection and segmentation timing.
type VADConfig struct {
	// Engine selects the VAD backend.
	Engine VADEngine `yaml:"engine"`

	// Mode is the WebRTC aggressiveness (0 least to 3 most aggressive).
	// Ignored by other engines.
	Mode int `yaml:"mode"`

	// ModelPath is the Silero ONNX model file. Required when Engine is
	// "silero", ignored otherwise.
	ModelPath string `yaml:"model_path"`

	// ActivationThreshold is the speech probability at or above which a
	// frame counts as speech, in [0, 1].
	ActivationThreshold float64 `yaml:"activation_threshold"`

	// HangoverMs is how long continuous silence must persist before an
	// open segment closes. Pauses shorter than this merge into one segment.
	HangoverMs int `yaml:"hangover_ms"`

	// PrerollMs is how much leading audio is backfilled into a segment
	// when speech activates, so soft onsets are not clipped.
	PrerollMs int `yaml:"preroll_ms"`

	// FrameSizeMs is the classification frame duration. WebRTC supports
	// 10, 20, or 30 ms only.
	FrameSizeMs int `yaml:"frame_size_ms"`
}

// CommandsConfig configures trigger-phrase detection on transcripts.
type CommandsConfig struct {
	// TriggerWord is the phrase that promotes a transcript to a command
	// event (e.g., "hey computer").
	TriggerWord string `yaml:"trigger_word"`

	// MinConfidence is the minimum transcription confidence required for a
	// trigger match to count, in [0, 1].
	MinConfidence float64 `yaml:"min_confidence"`
}

// EnqueueTimeout returns the enqueue timeout as a duration.
func (p PerformanceConfig) EnqueueTimeout() time.Duration {
	return time.Duration(p.EnqueueTimeoutMs) * time.Millisecond
}

// DrainTimeout returns the drain timeout as a duration.
func (p PerformanceConfig) DrainTimeout() time.Duration {
	return time.Duration(p.DrainTimeoutMs) * time.Millisecond
}

// Hangover returns the hangover window as a duration.
func (v VADConfig) Hangover() time.Duration {
	return time.Duration(v.HangoverMs) * time.Millisecond
}

// Preroll returns the pre-roll window as a duration.
func (v VADConfig) Preroll() time.Duration {
	return time.Duration(v.PrerollMs) * time.Millisecond
}

// FrameSamples returns the classification frame size in samples at rate Hz.
func (v VADConfig) FrameSamples(rate int) int {
	return rate * v.FrameSizeMs / 1000
}

// MinDuration returns the segment admission duration floor.
func (t TranscriptionConfig) MinDuration() time.Duration {
	return time.Duration(t.MinDurationSeconds * float64(time.Second))
}
