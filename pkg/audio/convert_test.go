package audio_test

import (
	"math"
	"testing"
	"time"

	"github.com/sotto-voice/sotto/pkg/audio"
)

func TestInt16ToFloat32_Range(t *testing.T) {
	t.Parallel()

	in := []int16{0, 16384, -16384, 32767, -32768}
	out := audio.Int16ToFloat32(in)

	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
	if len(out) != len(want) {
		t.Fatalf("len=%d, want %d", len(out), len(want))
	}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("out[%d]=%v, want %v", i, out[i], want[i])
		}
	}
}

func TestFloat32ToInt16_Clamps(t *testing.T) {
	t.Parallel()

	out := audio.Float32ToInt16([]float32{0, 1.5, -1.5, 0.5})
	if out[1] != 32767 {
		t.Errorf("positive overflow clamped to %d, want 32767", out[1])
	}
	if out[2] != -32767 {
		t.Errorf("negative overflow clamped to %d, want -32767", out[2])
	}
	if out[3] != 16383 {
		t.Errorf("out[3]=%d, want 16383", out[3])
	}
}

func TestInt16ToBytes_LittleEndian(t *testing.T) {
	t.Parallel()

	out := audio.Int16ToBytes([]int16{0x0102, -2})
	want := []byte{0x02, 0x01, 0xfe, 0xff}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte[%d]=%#x, want %#x", i, out[i], want[i])
		}
	}
}

func TestDownmixMono_AveragesChannels(t *testing.T) {
	t.Parallel()

	stereo := []float32{0.2, 0.4, -0.6, -0.2}
	mono := audio.DownmixMono(stereo, 2)
	if len(mono) != 2 {
		t.Fatalf("len=%d, want 2", len(mono))
	}
	if math.Abs(float64(mono[0]-0.3)) > 1e-6 {
		t.Errorf("mono[0]=%v, want 0.3", mono[0])
	}
	if math.Abs(float64(mono[1]+0.4)) > 1e-6 {
		t.Errorf("mono[1]=%v, want -0.4", mono[1])
	}
}

func TestDownmixMono_MonoPassThrough(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, 0.2, 0.3}
	out := audio.DownmixMono(in, 1)
	if &out[0] != &in[0] {
		t.Error("mono input should be returned without copying")
	}
}

func TestFrameBatch_Duration(t *testing.T) {
	t.Parallel()

	b := audio.FrameBatch{
		Samples:    make([]float32, 320),
		SampleRate: 16000,
		Channels:   2,
	}
	if got := b.Frames(); got != 160 {
		t.Errorf("Frames=%d, want 160", got)
	}
	if got := b.Duration(); got != 10*time.Millisecond {
		t.Errorf("Duration=%v, want 10ms", got)
	}
}
