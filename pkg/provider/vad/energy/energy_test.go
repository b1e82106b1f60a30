package energy_test

import (
	"math"
	"testing"

	"github.com/sotto-voice/sotto/pkg/provider/vad"
	"github.com/sotto-voice/sotto/pkg/provider/vad/energy"
)

func sineFrame(n int, amplitude float64) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		frame[i] = float32(amplitude * math.Sin(2*math.Pi*float64(i)/64))
	}
	return frame
}

func TestProcessFrame_SilenceVsSpeech(t *testing.T) {
	t.Parallel()

	eng := energy.New()
	sess, err := eng.NewSession(vad.Config{SampleRate: 16000, FrameSize: 480, Threshold: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	quiet, err := sess.ProcessFrame(make([]float32, 480))
	if err != nil {
		t.Fatal(err)
	}
	if quiet.Speech {
		t.Errorf("silent frame classified as speech (p=%.3f)", quiet.Probability)
	}
	if quiet.Probability != 0 {
		t.Errorf("silent frame probability %.3f, want 0", quiet.Probability)
	}

	loud, err := sess.ProcessFrame(sineFrame(480, 0.5))
	if err != nil {
		t.Fatal(err)
	}
	if !loud.Speech {
		t.Errorf("loud frame classified as silence (p=%.3f)", loud.Probability)
	}
	if loud.Probability != 1 {
		t.Errorf("loud frame probability %.3f, want clamped 1", loud.Probability)
	}
}

func TestProcessFrame_ThresholdBoundary(t *testing.T) {
	t.Parallel()

	// With the default 0.05 reference, a 0.03 RMS frame maps to p=0.6.
	eng := energy.New()
	sess, err := eng.NewSession(vad.Config{SampleRate: 16000, FrameSize: 4, Threshold: 0.6})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	d, err := sess.ProcessFrame([]float32{0.03, -0.03, 0.03, -0.03})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d.Probability-0.6) > 1e-6 {
		t.Fatalf("probability %.6f, want 0.6", d.Probability)
	}
	if !d.Speech {
		t.Error("frame exactly at threshold should classify as speech")
	}
}

func TestProcessFrame_RejectsWrongFrameSize(t *testing.T) {
	t.Parallel()

	sess, err := energy.New().NewSession(vad.Config{SampleRate: 16000, FrameSize: 480, Threshold: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	if _, err := sess.ProcessFrame(make([]float32, 100)); err == nil {
		t.Error("expected error for mismatched frame size")
	}
}

func TestNewSession_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	eng := energy.New()
	bad := []vad.Config{
		{SampleRate: 0, FrameSize: 480, Threshold: 0.5},
		{SampleRate: 16000, FrameSize: 0, Threshold: 0.5},
		{SampleRate: 16000, FrameSize: 480, Threshold: 1.5},
	}
	for _, cfg := range bad {
		if _, err := eng.NewSession(cfg); err == nil {
			t.Errorf("NewSession(%+v) succeeded, want error", cfg)
		}
	}
}

func TestProcessFrame_AfterClose(t *testing.T) {
	t.Parallel()

	sess, _ := energy.New().NewSession(vad.Config{SampleRate: 16000, FrameSize: 4, Threshold: 0.5})
	if err := sess.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close returned %v, want nil", err)
	}
	if _, err := sess.ProcessFrame(make([]float32, 4)); err == nil {
		t.Error("ProcessFrame after Close succeeded, want error")
	}
}
