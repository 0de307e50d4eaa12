package audio_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/aria/pkg/audio"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	f := audio.Frame{Samples: []int16{0, 1, -1, 32767, -32768, 1234}, SampleRate: audio.InputSampleRate}
	chunk := audio.Encode(f)
	if chunk.SampleRate != audio.InputSampleRate {
		t.Fatalf("SampleRate = %d, want %d", chunk.SampleRate, audio.InputSampleRate)
	}

	raw, err := audio.Decode(chunk)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, err := audio.FrameFromBytes(raw, chunk.SampleRate)
	if err != nil {
		t.Fatalf("FrameFromBytes: %v", err)
	}
	if len(got.Samples) != len(f.Samples) {
		t.Fatalf("len = %d, want %d", len(got.Samples), len(f.Samples))
	}
	for i := range f.Samples {
		if got.Samples[i] != f.Samples[i] {
			t.Errorf("sample %d: got %d, want %d", i, got.Samples[i], f.Samples[i])
		}
	}
}

func TestEncodeBytes_DecodeIdentity(t *testing.T) {
	in := []byte{0x01, 0x02, 0xff, 0x7f, 0x00, 0x80}
	chunk, err := audio.EncodeBytes(in, audio.OutputSampleRate)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	out, err := audio.Decode(chunk)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("round trip = %v, want %v", out, in)
	}

	again, err := audio.EncodeBytes(out, audio.OutputSampleRate)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	if again.Data != chunk.Data {
		t.Errorf("re-encoded %q, want %q", again.Data, chunk.Data)
	}
}

func TestEncodedChunk_MIMEType(t *testing.T) {
	c := audio.EncodedChunk{SampleRate: 16000}
	if got := c.MIMEType(); got != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType() = %q", got)
	}
}

func TestCodec_OddLength(t *testing.T) {
	odd := []byte{1, 2, 3}

	if _, err := audio.EncodeBytes(odd, 16000); !errors.Is(err, audio.ErrCodecFormat) {
		t.Errorf("EncodeBytes: err = %v, want ErrCodecFormat", err)
	}
	if _, err := audio.ToPlayback(odd, 24000); !errors.Is(err, audio.ErrCodecFormat) {
		t.Errorf("ToPlayback: err = %v, want ErrCodecFormat", err)
	}
	if _, err := audio.FrameFromBytes(odd, 24000); !errors.Is(err, audio.ErrCodecFormat) {
		t.Errorf("FrameFromBytes: err = %v, want ErrCodecFormat", err)
	}

	// base64 of three bytes is valid base64 but odd PCM.
	if _, err := audio.Decode(audio.EncodedChunk{Data: "AQID", SampleRate: 24000}); !errors.Is(err, audio.ErrCodecFormat) {
		t.Errorf("Decode odd: err = %v, want ErrCodecFormat", err)
	}
}

func TestDecode_MalformedBase64(t *testing.T) {
	_, err := audio.Decode(audio.EncodedChunk{Data: "not base64!!", SampleRate: 24000})
	if !errors.Is(err, audio.ErrCodecFormat) {
		t.Errorf("err = %v, want ErrCodecFormat", err)
	}
}

func TestToPlayback_Normalises(t *testing.T) {
	raw := audio.PCM16Bytes([]int16{0, 16384, -32768, 32767})
	pf, err := audio.ToPlayback(raw, audio.OutputSampleRate)
	if err != nil {
		t.Fatalf("ToPlayback: %v", err)
	}
	want := []float32{0, 0.5, -1, 32767.0 / 32768}
	for i, w := range want {
		if pf.Samples[i] != w {
			t.Errorf("sample %d: got %v, want %v", i, pf.Samples[i], w)
		}
	}
}

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"minus one", -1, -32768},
		{"one saturates", 1, 32767},
		{"above range", 1.5, 32767},
		{"below range", -2, -32768},
		{"truncates toward zero", 0.00005, 1},
		{"truncates negative toward zero", -0.00005, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := audio.FloatToPCM16([]float32{tt.in})
			if got[0] != tt.want {
				t.Errorf("FloatToPCM16(%v) = %d, want %d", tt.in, got[0], tt.want)
			}
		})
	}
}

func TestPlaybackFrame_Duration(t *testing.T) {
	pf := audio.PlaybackFrame{Samples: make([]float32, 12000), SampleRate: 24000}
	if got := pf.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration() = %v, want 500ms", got)
	}
	f := audio.Frame{Samples: make([]int16, audio.DefaultFrameSamples), SampleRate: audio.InputSampleRate}
	if got := f.Duration(); got != 256*time.Millisecond {
		t.Errorf("Frame.Duration() = %v, want 256ms", got)
	}
}
