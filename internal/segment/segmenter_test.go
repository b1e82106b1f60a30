package segment_test

import (
	"strings"
	"testing"
	"time"

	"github.com/sotto-voice/sotto/internal/segment"
	"github.com/sotto-voice/sotto/pkg/provider/vad"
	vadmock "github.com/sotto-voice/sotto/pkg/provider/vad/mock"
)

const (
	testRate = 16000

	// 100ms frames keep the hangover arithmetic readable.
	testFrame = 1600
)

func testConfig() segment.Config {
	return segment.Config{
		SampleRate: testRate,
		FrameSize:  testFrame,
		Preroll:    0,
		Hangover:   500 * time.Millisecond,
	}
}

// script builds a decision script from a string of 's' (speech) and '.'
// (silence) characters, one per frame.
func script(pattern string) []vad.Decision {
	decs := make([]vad.Decision, 0, len(pattern))
	for _, c := range pattern {
		decs = append(decs, vad.Decision{Speech: c == 's', Probability: map[bool]float64{true: 0.9, false: 0.1}[c == 's']})
	}
	return decs
}

// frames returns n frames of audio, each filled with a distinct value so
// segment contents can be traced back to the frame that produced them.
func frames(n int) []float32 {
	out := make([]float32, 0, n*testFrame)
	for i := range n {
		v := float32(i+1) / 100
		for range testFrame {
			out = append(out, v)
		}
	}
	return out
}

func newSegmenter(t *testing.T, cfg segment.Config, pattern string) *segment.Segmenter {
	t.Helper()
	session := &vadmock.Session{Script: script(pattern)}
	s, err := segment.New(session, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestPush_ShortPauseMergesIntoOneSegment(t *testing.T) {
	t.Parallel()

	// speech, 300ms pause, speech, then 500ms of silence. With a 500ms
	// hangover the mid-utterance pause must not split the segment.
	pattern := "sss" + strings.Repeat(".", 3) + "sss" + strings.Repeat(".", 5)
	s := newSegmenter(t, testConfig(), pattern)

	closed, err := s.Push(frames(len(pattern)))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("got %d segments, want 1 (300ms pause should merge)", len(closed))
	}
	// All 14 frames belong to the one segment: speech, pause, speech, and
	// the closing hangover silence.
	if got, want := len(closed[0].Samples), len(pattern)*testFrame; got != want {
		t.Errorf("segment samples = %d, want %d", got, want)
	}
}

func TestPush_LongPauseSplitsIntoTwoSegments(t *testing.T) {
	t.Parallel()

	// A 700ms pause exceeds the 500ms hangover: two segments.
	pattern := "sss" + strings.Repeat(".", 7) + "sss" + strings.Repeat(".", 5)
	s := newSegmenter(t, testConfig(), pattern)

	closed, err := s.Push(frames(len(pattern)))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(closed) != 2 {
		t.Fatalf("got %d segments, want 2 (700ms pause should split)", len(closed))
	}
	// First segment: 3 speech frames + 5 hangover frames.
	if got, want := len(closed[0].Samples), 8*testFrame; got != want {
		t.Errorf("first segment samples = %d, want %d", got, want)
	}
	if closed[0].EndedAt.Before(closed[0].StartedAt) {
		t.Error("segment ended before it started")
	}
}

func TestPush_PrerollBackfilled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Preroll = 200 * time.Millisecond // two frames

	// Four silence frames, then speech. Only the last two silence frames
	// fit the pre-roll window.
	s := newSegmenter(t, cfg, "....ss"+strings.Repeat(".", 5))

	closed, err := s.Push(frames(11))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("got %d segments, want 1", len(closed))
	}

	seg := closed[0]
	// 2 preroll + 2 speech + 5 hangover frames.
	if got, want := len(seg.Samples), 9*testFrame; got != want {
		t.Fatalf("segment samples = %d, want %d", got, want)
	}
	// The first backfilled sample must come from frame index 2 (the third
	// silence frame), not from the start of the stream.
	if got, want := seg.Samples[0], float32(3)/100; got != want {
		t.Errorf("first preroll sample = %v, want %v (frame 3)", got, want)
	}
}

func TestPush_PartialFrameCarriedAcrossCalls(t *testing.T) {
	t.Parallel()

	s := newSegmenter(t, testConfig(), "ss"+strings.Repeat(".", 5))

	audio := frames(7)
	split := testFrame + testFrame/2 // one and a half frames

	closed, err := s.Push(audio[:split])
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(closed) != 0 {
		t.Fatalf("no segment should close after 1.5 frames, got %d", len(closed))
	}

	closed, err = s.Push(audio[split:])
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("got %d segments, want 1", len(closed))
	}
	if got, want := len(closed[0].Samples), 7*testFrame; got != want {
		t.Errorf("segment samples = %d, want %d", got, want)
	}
}

func TestFlush_ClosesOpenSegmentImmediately(t *testing.T) {
	t.Parallel()

	s := newSegmenter(t, testConfig(), "sss")

	closed, err := s.Push(frames(3))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(closed) != 0 {
		t.Fatalf("segment should still be open, got %d closed", len(closed))
	}

	seg := s.Flush()
	if seg == nil {
		t.Fatal("Flush returned nil with a segment open")
	}
	if got, want := len(seg.Samples), 3*testFrame; got != want {
		t.Errorf("flushed samples = %d, want %d", got, want)
	}

	if s.Flush() != nil {
		t.Error("second Flush should return nil")
	}
}

func TestFlush_NilWhenSilent(t *testing.T) {
	t.Parallel()

	s := newSegmenter(t, testConfig(), "...")
	if _, err := s.Push(frames(3)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if s.Flush() != nil {
		t.Error("Flush should return nil when no segment is open")
	}
}

func TestReset_DiscardsStateAndResetsSession(t *testing.T) {
	t.Parallel()

	session := &vadmock.Session{Script: script("sss")}
	s, err := segment.New(session, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Push(frames(3)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	s.Reset()
	if s.Flush() != nil {
		t.Error("Reset should have discarded the open segment")
	}
	if session.ResetCalls != 1 {
		t.Errorf("vad session ResetCalls = %d, want 1", session.ResetCalls)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	session := &vadmock.Session{}
	if _, err := segment.New(session, segment.Config{SampleRate: 0, FrameSize: 480}); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := segment.New(session, segment.Config{SampleRate: 16000, FrameSize: 0}); err == nil {
		t.Error("expected error for zero frame size")
	}
	if _, err := segment.New(nil, testConfig()); err == nil {
		t.Error("expected error for nil session")
	}
}

// slowSession delays every classification, standing in for a detector that
// cannot keep up with real time.
type slowSession struct {
	delay time.Duration
}

func (s *slowSession) ProcessFrame([]float32) (vad.Decision, error) {
	time.Sleep(s.delay)
	return vad.Decision{}, nil
}

func (s *slowSession) Reset()       {}
func (s *slowSession) Close() error { return nil }

func TestCalibrate(t *testing.T) {
	t.Parallel()

	fast := testConfig()
	if err := segment.Calibrate(&vadmock.Session{}, fast); err != nil {
		t.Errorf("instant session should calibrate, got %v", err)
	}

	// 1ms frame budget against a 5ms classifier.
	tight := segment.Config{SampleRate: 16000, FrameSize: 16, Hangover: time.Second}
	if err := segment.Calibrate(&slowSession{delay: 5 * time.Millisecond}, tight); err == nil {
		t.Error("expected error for a slower-than-real-time detector")
	}
}
