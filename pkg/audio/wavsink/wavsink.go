// Package wavsink writes the captured audio of a recording session to a
// standard uncompressed PCM WAV file.
//
// The pipeline feeds the sink post-resample mono samples, so the file is
// always written at the engine rate regardless of the capture device's
// native format; the container's rate, bit depth, and channel count come
// from the recording configuration.
package wavsink

import (
	"fmt"
	"os"
	"sync"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/sotto-voice/sotto/pkg/audio"
)

// Config describes the output WAV container.
type Config struct {
	// Path is the destination file. An existing file is truncated.
	Path string

	// SampleRate is the container's declared rate in Hz.
	SampleRate int

	// BitsPerSample is the PCM sample width: 16 or 24.
	BitsPerSample int

	// Channels is the container channel count. The sink receives mono
	// samples; when Channels > 1 each sample is duplicated across channels.
	Channels int
}

// Writer streams PCM samples into a WAV file. Safe for use from a single
// goroutine; Close is safe to call concurrently with nothing else pending.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	enc    *wav.Encoder
	cfg    Config
	closed bool
}

// Create opens the destination file and writes the WAV header. The caller
// must Close the writer to finalise the header's length fields.
func Create(cfg Config) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("wavsink: output path must not be empty")
	}
	if cfg.BitsPerSample != 16 && cfg.BitsPerSample != 24 {
		return nil, fmt.Errorf("wavsink: unsupported bit depth %d (want 16 or 24)", cfg.BitsPerSample)
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("wavsink: sample rate and channels must be positive")
	}

	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("wavsink: create %q: %w", cfg.Path, err)
	}

	enc := wav.NewEncoder(f, cfg.SampleRate, cfg.BitsPerSample, cfg.Channels, 1)
	return &Writer{f: f, enc: enc, cfg: cfg}, nil
}

// Write appends mono float samples to the file, converting to the
// configured integer bit depth and duplicating across channels if needed.
func (w *Writer) Write(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("wavsink: writer is closed")
	}
	if len(samples) == 0 {
		return nil
	}

	ints := audio.Float32ToInt16(samples)
	data := make([]int, 0, len(ints)*w.cfg.Channels)
	for _, s := range ints {
		v := int(s)
		if w.cfg.BitsPerSample == 24 {
			v <<= 8
		}
		for range w.cfg.Channels {
			data = append(data, v)
		}
	}

	buf := &gaudio.IntBuffer{
		Data: data,
		Format: &gaudio.Format{
			NumChannels: w.cfg.Channels,
			SampleRate:  w.cfg.SampleRate,
		},
		SourceBitDepth: w.cfg.BitsPerSample,
	}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("wavsink: write samples: %w", err)
	}
	return nil
}

// Close finalises the WAV header and closes the file. Calling Close more
// than once is safe and returns nil.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.enc.Close(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("wavsink: finalise encoder: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("wavsink: close file: %w", err)
	}
	return nil
}

// Path returns the destination file path.
func (w *Writer) Path() string { return w.cfg.Path }
