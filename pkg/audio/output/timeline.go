// Package output provides a software playback device built on a sample
// clock. A [Timeline] accepts frames scheduled at absolute offsets, mixes
// whatever overlaps each render block, and hands the result to a [Sink] such
// as a speaker or a file.
package output

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aria/pkg/audio"
)

// DefaultBlock is the render block length used by [Timeline.Run].
const DefaultBlock = 20 * time.Millisecond

// Sink receives rendered mono blocks at the timeline's sample rate.
type Sink interface {
	Write(samples []float32) error
}

// Discard is a [Sink] that drops every block.
var Discard Sink = discard{}

type discard struct{}

func (discard) Write([]float32) error { return nil }

// Timeline is an [audio.Output] whose clock is the number of samples
// rendered so far. Time only advances through [Timeline.Render], which makes
// it deterministic under test; [Timeline.Run] drives it in real time.
//
// All exported methods are safe for concurrent use.
type Timeline struct {
	rate int

	mu     sync.Mutex
	pos    int64 // samples rendered
	voices []*voice
	warn   sync.Once
}

var _ audio.Output = (*Timeline)(nil)

// NewTimeline returns a Timeline rendering at sampleRate.
func NewTimeline(sampleRate int) *Timeline {
	if sampleRate <= 0 {
		sampleRate = audio.OutputSampleRate
	}
	return &Timeline{rate: sampleRate}
}

// SampleRate returns the render rate.
func (t *Timeline) SampleRate() int { return t.rate }

// CurrentTime implements [audio.Output].
func (t *Timeline) CurrentTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset(t.pos)
}

// Schedule implements [audio.Output]. Frames at a different rate are
// resampled to the timeline rate.
func (t *Timeline) Schedule(f audio.PlaybackFrame, at time.Duration) (audio.Voice, error) {
	samples := f.Samples
	if f.SampleRate != t.rate {
		t.warn.Do(func() {
			slog.Warn("output: resampling scheduled frame",
				"from", f.SampleRate,
				"to", t.rate,
			)
		})
		samples = audio.ResampleLinear(samples, f.SampleRate, t.rate)
	}

	v := &voice{
		samples: samples,
		start:   t.samplesAt(at),
		done:    make(chan struct{}),
	}
	if len(samples) == 0 {
		v.finish()
		return v, nil
	}

	t.mu.Lock()
	if v.start < t.pos {
		v.start = t.pos
	}
	t.voices = append(t.voices, v)
	t.mu.Unlock()
	return v, nil
}

// Render mixes the next len(buf) samples into buf and advances the clock.
// Voices whose last sample has been rendered complete.
func (t *Timeline) Render(buf []float32) {
	clear(buf)

	t.mu.Lock()
	from := t.pos
	to := from + int64(len(buf))
	kept := t.voices[:0]
	var finished []*voice
	for _, v := range t.voices {
		if v.isStopped() {
			continue
		}
		end := v.start + int64(len(v.samples))
		lo, hi := max(from, v.start), min(to, end)
		for p := lo; p < hi; p++ {
			buf[p-from] += v.samples[p-v.start]
		}
		if end <= to {
			finished = append(finished, v)
			continue
		}
		kept = append(kept, v)
	}
	clear(t.voices[len(kept):])
	t.voices = kept
	t.pos = to
	t.mu.Unlock()

	for i, s := range buf {
		if s > 1 {
			buf[i] = 1
		} else if s < -1 {
			buf[i] = -1
		}
	}
	for _, v := range finished {
		v.finish()
	}
}

// Run renders blocks of DefaultBlock into sink in real time until ctx is
// cancelled. A sink error stops the loop and is returned.
func (t *Timeline) Run(ctx context.Context, sink Sink) error {
	n := int(int64(t.rate) * int64(DefaultBlock) / int64(time.Second))
	buf := make([]float32, n)
	ticker := time.NewTicker(DefaultBlock)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Render(buf)
			if err := sink.Write(buf); err != nil {
				return err
			}
		}
	}
}

// Pending returns the number of voices not yet finished.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// offset converts a sample position to a duration. Whole seconds and the
// remainder are scaled separately so long uptimes cannot overflow.
func (t *Timeline) offset(samples int64) time.Duration {
	r := int64(t.rate)
	return time.Duration(samples/r)*time.Second + time.Duration(samples%r)*time.Second/time.Duration(r)
}

// samplesAt is the inverse of offset.
func (t *Timeline) samplesAt(d time.Duration) int64 {
	r := int64(t.rate)
	sec := int64(d / time.Second)
	return sec*r + int64(d%time.Second)*r/int64(time.Second)
}

// voice is one frame placed on the timeline.
type voice struct {
	samples []float32
	start   int64

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	once    sync.Once
}

var _ audio.Voice = (*voice)(nil)

func (v *voice) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
	v.finish()
}

func (v *voice) Done() <-chan struct{} { return v.done }

func (v *voice) isStopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

func (v *voice) finish() {
	v.once.Do(func() { close(v.done) })
}
