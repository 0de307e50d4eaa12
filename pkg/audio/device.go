package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied is returned by [Microphone.Open] when access to the
	// capture device is refused.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrDeviceBusy is returned when a device is already held exclusively.
	ErrDeviceBusy = errors.New("audio: device busy")
)

// Microphone opens exclusive capture streams.
//
// Implementations must map an access refusal to [ErrPermissionDenied] so
// callers can distinguish it from transient failures with [errors.Is].
type Microphone interface {
	// Open acquires the device. want is a hint; the stream reports the format
	// it actually delivers via [InputStream.Format].
	Open(ctx context.Context, want Format) (InputStream, error)
}

// InputStream is an open capture stream delivering interleaved float samples.
type InputStream interface {
	// Format returns the delivered sample rate and channel count.
	Format() Format

	// Read blocks until samples are available and copies them into buf,
	// returning the number of samples written. It returns io.EOF when the
	// source is exhausted and an error after Close.
	Read(buf []float32) (int, error)

	// Close releases the device and unblocks any pending Read. Safe to call
	// more than once.
	Close() error
}

// Output is a playback device with a monotonically advancing clock.
type Output interface {
	// CurrentTime returns the device clock, measured from when the device
	// started.
	CurrentTime() time.Duration

	// Schedule queues f to start at device time at. A time in the past starts
	// immediately.
	Schedule(f PlaybackFrame, at time.Duration) (Voice, error)
}

// Voice is one scheduled frame on an [Output].
type Voice interface {
	// Stop cuts the voice off. Stopping a finished voice is a no-op.
	Stop()

	// Done is closed when the voice finishes, either naturally or via Stop.
	Done() <-chan struct{}
}

// NoMicrophone refuses every Open with [ErrPermissionDenied]. It stands in
// for a disabled capture device.
var NoMicrophone Microphone = noMicrophone{}

type noMicrophone struct{}

func (noMicrophone) Open(context.Context, Format) (InputStream, error) {
	return nil, ErrPermissionDenied
}
