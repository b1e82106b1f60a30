// Package silero implements a VAD engine backed by the Silero VAD v5 ONNX
// model, executed through ONNX Runtime.
//
// Silero operates on fixed 512-sample windows at 16 kHz (32 ms) and carries
// a recurrent hidden state between windows. Incoming frames are buffered
// until a full window is available; ProcessFrame reports the probability of
// the most recently completed window, carrying the previous value across
// frames that do not complete a window. Inference on the tiny model runs in
// well under a window's duration on any recent CPU, which the pipeline's
// startup calibration verifies.
//
// The ONNX Runtime shared library is loaded at runtime; its location is
// resolved from the SOTTO_ORT_LIB_PATH environment variable or an explicit
// WithLibraryPath option.
package silero

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/sotto-voice/sotto/pkg/provider/vad"
)

const (
	// windowSize is the number of samples per inference call. Silero VAD v5
	// at 16 kHz requires exactly 512 samples (32 ms).
	windowSize = 512

	// stateSize is the hidden state dimension per layer; the combined state
	// tensor has shape [2, 1, 128].
	stateSize = 128

	// requiredSampleRate is the only input rate the model supports here.
	requiredSampleRate = 16000
)

// ortInit ensures the ONNX Runtime environment is initialised exactly once.
// The error is retained so later NewSession calls surface the failure
// instead of proceeding with an uninitialised runtime.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// Compile-time assertion that Engine implements vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLibraryPath sets an explicit path to the ONNX Runtime shared library,
// overriding environment-based resolution.
func WithLibraryPath(path string) Option {
	return func(e *Engine) { e.libPath = path }
}

// Engine creates Silero VAD sessions from a model file. The model is read
// per session; ONNX Runtime keeps its own copy, so sessions are independent.
type Engine struct {
	modelPath string
	libPath   string
}

// New returns an Engine that loads the Silero ONNX model at modelPath.
// The model file's existence is checked eagerly so a bad path fails at
// startup rather than on first recording.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("silero: model path must not be empty")
	}
	info, err := os.Stat(modelPath)
	if err != nil {
		return nil, fmt.Errorf("silero: model %q: %w", modelPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("silero: model %q is a directory", modelPath)
	}

	e := &Engine{modelPath: modelPath}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// NewSession initialises ONNX Runtime (once per process), allocates the
// input/output tensors, and creates an inference session over the model.
// Only 16 kHz configs are accepted.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SampleRate != requiredSampleRate {
		return nil, fmt.Errorf("silero: sample rate %d unsupported, model requires %d", cfg.SampleRate, requiredSampleRate)
	}

	ortInitOnce.Do(func() {
		path := e.libPath
		if path == "" {
			var err error
			path, err = resolveLibPath()
			if err != nil {
				ortInitErr = err
				return
			}
		}
		ort.SetSharedLibraryPath(path)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("silero: %w", ortInitErr)
	}

	s := &session{cfg: cfg}
	if err := s.allocate(e.modelPath); err != nil {
		s.destroy()
		return nil, err
	}
	return s, nil
}

type session struct {
	cfg vad.Config

	ortSession *ort.AdvancedSession

	inputTensor  *ort.Tensor[float32] // [1, 512]
	stateTensor  *ort.Tensor[float32] // [2, 1, 128]
	srTensor     *ort.Tensor[int64]   // scalar sample rate
	outputTensor *ort.Tensor[float32] // [1, 1]
	stateNTensor *ort.Tensor[float32] // [2, 1, 128]

	// window accumulates samples until a full inference window is available.
	window []float32

	// lastProb carries the most recent window's probability across frames
	// that do not complete a window.
	lastProb float64

	closed bool
}

// allocate creates the tensors and the ONNX session.
func (s *session) allocate(modelPath string) error {
	var err error
	if s.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, windowSize)); err != nil {
		return fmt.Errorf("silero: create input tensor: %w", err)
	}
	if s.stateTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize)); err != nil {
		return fmt.Errorf("silero: create state tensor: %w", err)
	}
	if s.srTensor, err = ort.NewTensor(ort.NewShape(1), []int64{requiredSampleRate}); err != nil {
		return fmt.Errorf("silero: create sample-rate tensor: %w", err)
	}
	if s.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		return fmt.Errorf("silero: create output tensor: %w", err)
	}
	if s.stateNTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize)); err != nil {
		return fmt.Errorf("silero: create stateN tensor: %w", err)
	}

	// Zero the recurrent state; allocated tensor memory is not guaranteed
	// to be zeroed.
	zero(s.stateTensor.GetData())
	zero(s.stateNTensor.GetData())

	s.ortSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{s.inputTensor, s.stateTensor, s.srTensor},
		[]ort.Value{s.outputTensor, s.stateNTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("silero: create session: %w", err)
	}
	s.window = make([]float32, 0, windowSize*2)
	return nil
}

// ProcessFrame buffers the frame and runs inference for each completed
// 512-sample window, carrying the recurrent state forward. The returned
// probability is that of the latest completed window.
func (s *session) ProcessFrame(frame []float32) (vad.Decision, error) {
	if s.closed {
		return vad.Decision{}, fmt.Errorf("silero: session is closed")
	}
	if len(frame) != s.cfg.FrameSize {
		return vad.Decision{}, fmt.Errorf("silero: frame size %d, want %d", len(frame), s.cfg.FrameSize)
	}

	s.window = append(s.window, frame...)
	for len(s.window) >= windowSize {
		prob, err := s.infer(s.window[:windowSize])
		if err != nil {
			return vad.Decision{}, err
		}
		s.window = s.window[windowSize:]
		s.lastProb = float64(prob)
	}

	return vad.Decision{
		Speech:      s.lastProb >= s.cfg.Threshold,
		Probability: s.lastProb,
	}, nil
}

// infer runs one inference over exactly windowSize samples and rolls the
// hidden state forward.
func (s *session) infer(window []float32) (float32, error) {
	copy(s.inputTensor.GetData(), window)
	if err := s.ortSession.Run(); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}
	copy(s.stateTensor.GetData(), s.stateNTensor.GetData())
	return s.outputTensor.GetData()[0], nil
}

// Reset clears the recurrent state, the window buffer, and the carried
// probability.
func (s *session) Reset() {
	if s.closed {
		return
	}
	zero(s.stateTensor.GetData())
	zero(s.stateNTensor.GetData())
	s.window = s.window[:0]
	s.lastProb = 0
}

// Close releases all ONNX Runtime resources. Safe to call more than once.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.destroy()
	return nil
}

func (s *session) destroy() {
	if s.ortSession != nil {
		s.ortSession.Destroy()
		s.ortSession = nil
	}
	for _, t := range []*ort.Tensor[float32]{s.inputTensor, s.stateTensor, s.outputTensor, s.stateNTensor} {
		if t != nil {
			t.Destroy()
		}
	}
	s.inputTensor, s.stateTensor, s.outputTensor, s.stateNTensor = nil, nil, nil, nil
	if s.srTensor != nil {
		s.srTensor.Destroy()
		s.srTensor = nil
	}
}

// resolveLibPath locates the ONNX Runtime shared library. Search order:
//
//  1. SOTTO_ORT_LIB_PATH environment variable
//  2. lib/<goos>-<goarch>/ relative to the executable
func resolveLibPath() (string, error) {
	if env := os.Getenv("SOTTO_ORT_LIB_PATH"); env != "" {
		info, err := os.Stat(env)
		if err != nil {
			return "", fmt.Errorf("silero: SOTTO_ORT_LIB_PATH=%q does not exist", env)
		}
		if info.IsDir() {
			return "", fmt.Errorf("silero: SOTTO_ORT_LIB_PATH=%q is a directory, expected a file", env)
		}
		return env, nil
	}

	if exePath, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(exePath), "lib", runtime.GOOS+"-"+runtime.GOARCH, libFilename())
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("silero: ONNX Runtime shared library not found; set SOTTO_ORT_LIB_PATH")
}

// libFilename returns the platform-specific ONNX Runtime library filename.
func libFilename() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

func zero(s []float32) {
	for i := range s {
		s[i] = 0
	}
}
