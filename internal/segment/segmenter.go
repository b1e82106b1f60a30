package segment

import (
	"errors"
	"fmt"
	"time"

	"github.com/sotto-voice/sotto/pkg/provider/vad"
)

type segState int

const (
	stateSilence segState = iota
	stateSpeech
)

// Config holds the segmentation timing parameters.
type Config struct {
	// SampleRate is the rate of the incoming sample stream in Hz.
	SampleRate int

	// FrameSize is the classification frame size in samples. Must match
	// the frame size of the VAD session.
	FrameSize int

	// Preroll is how much leading audio is backfilled into a segment when
	// speech activates.
	Preroll time.Duration

	// Hangover is how long continuous silence must persist before an open
	// segment closes.
	Hangover time.Duration
}

// Validate checks the config for usable values.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("segment: sample rate %d must be positive", c.SampleRate))
	}
	if c.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("segment: frame size %d must be positive", c.FrameSize))
	}
	if c.Preroll < 0 {
		errs = append(errs, fmt.Errorf("segment: preroll %v must not be negative", c.Preroll))
	}
	if c.Hangover < 0 {
		errs = append(errs, fmt.Errorf("segment: hangover %v must not be negative", c.Hangover))
	}
	return errors.Join(errs...)
}

// frameDuration returns the duration of one classification frame.
func (c Config) frameDuration() time.Duration {
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// prerollSamples returns the pre-roll window size in samples.
func (c Config) prerollSamples() int {
	return int(int64(c.SampleRate) * int64(c.Preroll) / int64(time.Second))
}

// Segmenter consumes the normalized sample stream and emits closed speech
// segments. It is synchronous and never blocks: each Push classifies the
// buffered frames with the VAD session and returns immediately. Not safe for
// concurrent use; the pipeline drives it from a single goroutine.
type Segmenter struct {
	cfg     Config
	session vad.SessionHandle

	state      segState
	carry      []float32 // partial frame awaiting completion
	preroll    []float32 // trailing silence, bounded to the pre-roll window
	current    *Segment
	silenceRun time.Duration

	now func() time.Time
}

// New returns a Segmenter classifying frames with the given VAD session.
// The session's frame size must equal cfg.FrameSize.
func New(session vad.SessionHandle, cfg Config) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.New("segment: vad session must not be nil")
	}
	return &Segmenter{
		cfg:     cfg,
		session: session,
		now:     time.Now,
	}, nil
}

// Push feeds samples into the segmenter and returns any segments closed by
// them. Samples may be of arbitrary length; a trailing partial frame is
// carried into the next Push.
func (s *Segmenter) Push(samples []float32) ([]Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	s.carry = append(s.carry, samples...)

	var closed []Segment
	for len(s.carry) >= s.cfg.FrameSize {
		frame := s.carry[:s.cfg.FrameSize]
		dec, err := s.session.ProcessFrame(frame)
		if err != nil {
			return closed, fmt.Errorf("segment: classify frame: %w", err)
		}
		if seg := s.step(frame, dec); seg != nil {
			closed = append(closed, *seg)
		}
		s.carry = s.carry[s.cfg.FrameSize:]
	}

	// Rebase the carry so the backing array does not grow without bound.
	if len(s.carry) > 0 {
		s.carry = append([]float32(nil), s.carry...)
	} else {
		s.carry = nil
	}
	return closed, nil
}

// step advances the state machine by one classified frame and returns the
// segment closed by it, if any.
func (s *Segmenter) step(frame []float32, dec vad.Decision) *Segment {
	switch s.state {
	case stateSilence:
		if !dec.Speech {
			s.bufferPreroll(frame)
			return nil
		}
		seg := &Segment{
			Samples:    make([]float32, 0, len(s.preroll)+len(frame)),
			SampleRate: s.cfg.SampleRate,
			StartedAt:  s.now(),
		}
		seg.Samples = append(seg.Samples, s.preroll...)
		seg.Samples = append(seg.Samples, frame...)
		s.preroll = nil
		s.current = seg
		s.silenceRun = 0
		s.state = stateSpeech
		return nil

	case stateSpeech:
		s.current.Samples = append(s.current.Samples, frame...)
		if dec.Speech {
			s.silenceRun = 0
			return nil
		}
		s.silenceRun += s.cfg.frameDuration()
		if s.silenceRun < s.cfg.Hangover {
			return nil
		}
		return s.closeCurrent()
	}
	return nil
}

// Flush force-closes the open segment, if any, and resets the segmenter to
// silence. Used on stop, where the hangover must not be waited out.
func (s *Segmenter) Flush() *Segment {
	if s.state != stateSpeech {
		return nil
	}
	return s.closeCurrent()
}

// Reset discards all buffered state, including any open segment, and resets
// the VAD session. The segmenter is ready for a fresh stream afterwards.
func (s *Segmenter) Reset() {
	s.state = stateSilence
	s.carry = nil
	s.preroll = nil
	s.current = nil
	s.silenceRun = 0
	s.session.Reset()
}

func (s *Segmenter) closeCurrent() *Segment {
	seg := s.current
	seg.EndedAt = s.now()
	s.current = nil
	s.silenceRun = 0
	s.state = stateSilence
	return seg
}

// bufferPreroll appends frame to the pre-roll buffer, trimming it to the
// configured window.
func (s *Segmenter) bufferPreroll(frame []float32) {
	max := s.cfg.prerollSamples()
	if max == 0 {
		return
	}
	s.preroll = append(s.preroll, frame...)
	if excess := len(s.preroll) - max; excess > 0 {
		s.preroll = append([]float32(nil), s.preroll[excess:]...)
	}
}

// calibrationProbes is how many classifications the startup probe averages.
const calibrationProbes = 8

// Calibrate verifies that the VAD session classifies a frame well within the
// real-time budget of one frame. A detector slower than the audio it
// classifies can never keep up, so this is a fatal configuration error
// reported at startup rather than a runtime condition. The session is Reset
// afterwards so probe frames do not pollute its state.
func Calibrate(session vad.SessionHandle, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	frame := make([]float32, cfg.FrameSize)

	start := time.Now()
	for range calibrationProbes {
		if _, err := session.ProcessFrame(frame); err != nil {
			return fmt.Errorf("segment: calibration probe: %w", err)
		}
	}
	avg := time.Since(start) / calibrationProbes
	session.Reset()

	if budget := cfg.frameDuration(); avg > budget {
		return fmt.Errorf("segment: vad classifies a %v frame in %v, slower than real time", budget, avg)
	}
	return nil
}
