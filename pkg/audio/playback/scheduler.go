// Package playback schedules decoded audio frames on an [audio.Output] so
// consecutive frames play back to back without gaps or overlap.
//
// The [Scheduler] keeps a next-start clock and a set of in-flight frames. A
// frame that arrives while earlier frames are still queued starts exactly
// where the previous one ends; a frame that arrives after the device has gone
// quiet starts at the current device time. When the last in-flight frame
// finishes naturally, the scheduler reports that playback has drained.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/aria/pkg/audio"
)

// ErrEmptyFrame is returned by [Scheduler.Schedule] for a frame with no samples.
var ErrEmptyFrame = errors.New("playback: empty frame")

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithOnDrained registers fn to be called each time the set of in-flight
// frames becomes empty through natural completion. fn runs on its own
// goroutine, outside the scheduler lock, and must not block for long.
// Frames cut off by [Scheduler.Reset] never trigger it.
func WithOnDrained(fn func()) Option {
	return func(s *Scheduler) {
		s.onDrained = fn
	}
}

// unit is one frame scheduled on the output.
type unit struct {
	id    uint64
	voice audio.Voice
	start time.Duration
	end   time.Duration
}

// Scheduler places frames on an output device in arrival order.
//
// All exported methods are safe for concurrent use.
type Scheduler struct {
	out       audio.Output
	onDrained func()

	mu     sync.Mutex
	next   time.Duration    // earliest start for the next frame
	active map[uint64]*unit // in-flight frames
	seq    uint64
}

// New creates a Scheduler on out. The clock starts at out's current time.
func New(out audio.Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:    out,
		next:   out.CurrentTime(),
		active: make(map[uint64]*unit),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule queues f at max(next, device time) and advances the clock by the
// frame's duration. It returns the chosen start offset.
//
// If the output rejects the frame the clock is left untouched.
func (s *Scheduler) Schedule(f audio.PlaybackFrame) (time.Duration, error) {
	d := f.Duration()
	if d <= 0 {
		return 0, ErrEmptyFrame
	}

	s.mu.Lock()
	startAt := max(s.next, s.out.CurrentTime())
	v, err := s.out.Schedule(f, startAt)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("playback: schedule at %v: %w", startAt, err)
	}
	s.next = startAt + d
	s.seq++
	u := &unit{id: s.seq, voice: v, start: startAt, end: s.next}
	s.active[u.id] = u
	s.mu.Unlock()

	go s.await(u)
	return startAt, nil
}

// await removes u once its voice completes and fires the drained callback
// when u was the last in-flight frame.
func (s *Scheduler) await(u *unit) {
	<-u.voice.Done()

	s.mu.Lock()
	if _, ok := s.active[u.id]; !ok {
		// Already removed by Reset.
		s.mu.Unlock()
		return
	}
	delete(s.active, u.id)
	drained := len(s.active) == 0
	cb := s.onDrained
	s.mu.Unlock()

	if drained && cb != nil {
		cb()
	}
}

// Reset stops every in-flight frame, clears the set and moves the clock to
// the device's current time. The drained callback is not invoked.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	voices := make([]audio.Voice, 0, len(s.active))
	for id, u := range s.active {
		voices = append(voices, u.voice)
		delete(s.active, id)
	}
	s.next = s.out.CurrentTime()
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
}

// Active returns the number of in-flight frames.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the earliest start offset for the next frame.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
