package whisper

import (
	"path/filepath"
	"testing"
)

func TestNew_RejectsBadModelPath(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty model path")
	}
	if _, err := New(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Error("expected error for nonexistent model file")
	}
}

func TestMeanProbability(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		sum  float64
		n    int
		want float64
	}{
		{"no tokens", 0, 0, 0},
		{"single token", 0.8, 1, 0.8},
		{"averages", 2.4, 3, 0.8},
		{"clamps high", 5, 4, 1},
		{"clamps low", -1, 2, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := meanProbability(tc.sum, tc.n); got != tc.want {
				t.Errorf("meanProbability(%v, %d)=%v, want %v", tc.sum, tc.n, got, tc.want)
			}
		})
	}
}
