package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCodecFormat is returned when a buffer cannot be interpreted as PCM16:
// its byte length is odd or its base64 encoding is malformed.
var ErrCodecFormat = errors.New("audio: malformed pcm16 buffer")

// EncodedChunk is a PCM16 buffer in transport-safe form. Data is the
// standard base64 encoding of the little-endian sample bytes.
type EncodedChunk struct {
	Data       string
	SampleRate int
}

// MIMEType returns the media type tag for the chunk, e.g. "audio/pcm;rate=16000".
func (c EncodedChunk) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", c.SampleRate)
}

// Encode serialises f as an [EncodedChunk]. It is lossless and does not
// resample.
func Encode(f Frame) EncodedChunk {
	return EncodedChunk{
		Data:       base64.StdEncoding.EncodeToString(PCM16Bytes(f.Samples)),
		SampleRate: f.SampleRate,
	}
}

// EncodeBytes wraps raw little-endian PCM16 bytes in an [EncodedChunk].
func EncodeBytes(b []byte, sampleRate int) (EncodedChunk, error) {
	if len(b)%2 != 0 {
		return EncodedChunk{}, fmt.Errorf("%w: odd byte length %d", ErrCodecFormat, len(b))
	}
	return EncodedChunk{
		Data:       base64.StdEncoding.EncodeToString(b),
		SampleRate: sampleRate,
	}, nil
}

// Decode returns the raw PCM16 bytes carried by c.
func Decode(c EncodedChunk) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodecFormat, err)
	}
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte length %d", ErrCodecFormat, len(b))
	}
	return b, nil
}

// FrameFromBytes reinterprets little-endian PCM16 bytes as a [Frame].
func FrameFromBytes(b []byte, sampleRate int) (Frame, error) {
	if len(b)%2 != 0 {
		return Frame{}, fmt.Errorf("%w: odd byte length %d", ErrCodecFormat, len(b))
	}
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return Frame{Samples: samples, SampleRate: sampleRate}, nil
}

// ToPlayback decodes PCM16 bytes into a normalised [PlaybackFrame], dividing
// each sample by 32768. An odd byte length is an error; the trailing byte is
// never silently discarded.
func ToPlayback(b []byte, sampleRate int) (PlaybackFrame, error) {
	if len(b)%2 != 0 {
		return PlaybackFrame{}, fmt.Errorf("%w: odd byte length %d", ErrCodecFormat, len(b))
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[i*2:]))) / 32768
	}
	return PlaybackFrame{Samples: out, SampleRate: sampleRate}, nil
}

// PCM16Bytes writes samples as little-endian bytes.
func PCM16Bytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// FloatToPCM16 converts normalised float samples to PCM16 by multiplying by
// 32768 and truncating toward zero. Values outside [-1, 1) saturate at the
// int16 limits instead of wrapping.
func FloatToPCM16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		out[i] = floatToSample(v)
	}
	return out
}

func floatToSample(v float32) int16 {
	s := float64(v) * 32768
	switch {
	case math.IsNaN(s):
		return 0
	case s >= math.MaxInt16:
		return math.MaxInt16
	case s <= math.MinInt16:
		return math.MinInt16
	}
	return int16(s)
}
