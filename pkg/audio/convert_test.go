package audio_test

import (
	"testing"

	"github.com/MrWong99/aria/pkg/audio"
)

func TestDownmix(t *testing.T) {
	// Two stereo frames: L=0.25,R=0.75 and L=-0.25,R=-0.75
	got := audio.Downmix([]float32{0.25, 0.75, -0.25, -0.75}, 2)
	want := []float32{0.5, -0.5}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownmix_Clamping(t *testing.T) {
	got := audio.Downmix([]float32{2, 2}, 2)
	if got[0] != 1 {
		t.Errorf("got %v, want 1", got[0])
	}
}

func TestDownmix_DropsPartialFrame(t *testing.T) {
	got := audio.Downmix([]float32{0.5, 0.5, 0.1}, 2)
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestResampleLinear_SameRate(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	got := audio.ResampleLinear(in, 16000, 16000)
	if &got[0] != &in[0] {
		t.Error("expected the input slice to be returned unchanged")
	}
}

func TestResampleLinear_Upsample(t *testing.T) {
	// 8000 -> 16000 doubles the sample count and interpolates midpoints.
	got := audio.ResampleLinear([]float32{0, 1}, 8000, 16000)
	want := []float32{0, 0.5, 1, 1}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResampleLinear_Downsample(t *testing.T) {
	in := make([]float32, 4800)
	got := audio.ResampleLinear(in, 48000, 16000)
	if len(got) != 1600 {
		t.Errorf("len = %d, want 1600", len(got))
	}
}

func TestNormalizer_NoOp(t *testing.T) {
	n := audio.Normalizer{TargetRate: 16000}
	in := []float32{0.1, 0.2}
	got := n.Normalize(in, audio.Format{SampleRate: 16000, Channels: 1})
	if &got[0] != &in[0] {
		t.Error("expected passthrough for matching format")
	}
}

func TestNormalizer_StereoResample(t *testing.T) {
	n := audio.Normalizer{TargetRate: 16000}
	// 480 stereo frames at 48 kHz -> 160 mono samples at 16 kHz.
	in := make([]float32, 960)
	for i := range in {
		in[i] = 0.5
	}
	got := n.Normalize(in, audio.Format{SampleRate: 48000, Channels: 2})
	if len(got) != 160 {
		t.Fatalf("len = %d, want 160", len(got))
	}
	for i, v := range got {
		if v != 0.5 {
			t.Fatalf("sample %d = %v, want 0.5", i, v)
		}
	}
}

func TestFormat_String(t *testing.T) {
	tests := []struct {
		f    audio.Format
		want string
	}{
		{audio.Format{SampleRate: 16000, Channels: 1}, "16000Hz mono"},
		{audio.Format{SampleRate: 48000, Channels: 2}, "48000Hz stereo"},
		{audio.Format{SampleRate: 44100, Channels: 6}, "44100Hz 6ch"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
