// Package capture turns a live microphone stream into fixed-size, encoded
// PCM16 frames ready for upload.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/aria/pkg/audio"
)

// ErrAlreadyRunning is returned by [Pipeline.Start] while a capture is active.
var ErrAlreadyRunning = errors.New("capture: already running")

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithFrameSamples sets the number of samples per emitted frame.
// Default [audio.DefaultFrameSamples].
func WithFrameSamples(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.frameSamples = n
		}
	}
}

// Pipeline owns one microphone stream at a time. It reads float samples,
// normalises them to 16 kHz mono, cuts them into frames of a fixed size,
// converts each to PCM16 and hands the encoded chunk to a callback.
//
// Start and Stop are safe for concurrent use.
type Pipeline struct {
	mic          audio.Microphone
	frameSamples int

	mu   sync.Mutex
	run  *run
	seen atomic.Int64 // frames emitted over the pipeline's lifetime
}

// run is the state of one Start..Stop cycle.
type run struct {
	stream    audio.InputStream
	quit      atomic.Bool
	done      chan struct{}
	stopWatch func() bool
}

// New returns a Pipeline reading from mic.
func New(mic audio.Microphone, opts ...Option) *Pipeline {
	p := &Pipeline{
		mic:          mic,
		frameSamples: audio.DefaultFrameSamples,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start acquires the microphone and begins delivering frames to onFrame from
// a background goroutine. onFrame must not block.
//
// If the microphone cannot be acquired the error is returned (wrapping
// [audio.ErrPermissionDenied] when access was refused) and no resources are
// held. Cancelling ctx stops the capture the same way [Pipeline.Stop] does,
// except that it does not wait.
func (p *Pipeline) Start(ctx context.Context, onFrame func(audio.EncodedChunk)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != nil {
		return ErrAlreadyRunning
	}

	st, err := p.mic.Open(ctx, audio.InputFormat)
	if err != nil {
		return fmt.Errorf("capture: open microphone: %w", err)
	}

	r := &run{stream: st, done: make(chan struct{})}
	r.stopWatch = context.AfterFunc(ctx, func() {
		r.quit.Store(true)
		_ = st.Close()
	})
	p.run = r
	go p.loop(r, onFrame)
	return nil
}

// Stop releases the microphone and waits for the reader goroutine to exit.
// Once Stop returns no further frames are delivered. Calling Stop when not
// running is a no-op.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	r := p.run
	p.run = nil
	p.mu.Unlock()
	if r == nil {
		return
	}

	r.stopWatch()
	r.quit.Store(true)
	if err := r.stream.Close(); err != nil {
		slog.Warn("capture: close microphone", "err", err)
	}
	<-r.done
}

// Running reports whether a capture is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

// Frames returns the total number of frames emitted.
func (p *Pipeline) Frames() int64 { return p.seen.Load() }

func (p *Pipeline) loop(r *run, onFrame func(audio.EncodedChunk)) {
	defer close(r.done)

	src := r.stream.Format()
	norm := audio.Normalizer{TargetRate: audio.InputSampleRate}
	channels := max(src.Channels, 1)
	buf := make([]float32, p.frameSamples*channels)
	pending := make([]float32, 0, p.frameSamples*2)

	for {
		n, err := r.stream.Read(buf)
		if n > 0 {
			pending = append(pending, norm.Normalize(buf[:n], src)...)
			for len(pending) >= p.frameSamples {
				if r.quit.Load() {
					return
				}
				f := audio.Frame{
					Samples:    audio.FloatToPCM16(pending[:p.frameSamples]),
					SampleRate: audio.InputSampleRate,
				}
				onFrame(audio.Encode(f))
				p.seen.Add(1)
				pending = append(pending[:0], pending[p.frameSamples:]...)
			}
		}
		if err != nil {
			switch {
			case r.quit.Load():
			case errors.Is(err, io.EOF):
				slog.Info("capture: microphone stream ended")
			default:
				slog.Warn("capture: read microphone", "err", err)
			}
			return
		}
	}
}
