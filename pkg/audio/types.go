// Package audio defines the PCM types shared by the capture and playback
// paths, the codec that turns PCM frames into transport-safe chunks, and the
// device interfaces that microphone and speaker backends implement.
//
// All PCM in this package is mono, signed 16-bit, little-endian. Two sample
// rates are in play: [InputSampleRate] for audio uploaded to the remote voice
// model and [OutputSampleRate] for audio it returns.
package audio

import (
	"fmt"
	"time"
)

const (
	// InputSampleRate is the rate of captured audio sent upstream.
	InputSampleRate = 16000

	// OutputSampleRate is the rate of audio returned by the remote voice model.
	OutputSampleRate = 24000

	// DefaultFrameSamples is the number of samples per captured frame
	// (256 ms at 16 kHz).
	DefaultFrameSamples = 4096
)

// Format describes the sample rate and channel count of a device stream.
type Format struct {
	SampleRate int
	Channels   int
}

// InputFormat is the format the capture pipeline produces.
var InputFormat = Format{SampleRate: InputSampleRate, Channels: 1}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Frame is a contiguous block of mono PCM16 samples.
type Frame struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return samplesDuration(len(f.Samples), f.SampleRate)
}

// PlaybackFrame is a decoded frame in normalised float form, ready for an
// output device. Samples lie in [-1, 1).
type PlaybackFrame struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the frame.
func (f PlaybackFrame) Duration() time.Duration {
	return samplesDuration(len(f.Samples), f.SampleRate)
}

func samplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
