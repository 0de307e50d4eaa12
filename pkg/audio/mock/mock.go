// Package mock provides in-memory implementations of the [audio.Microphone],
// [audio.InputStream], [audio.Output] and [audio.Voice] interfaces for unit
// tests.
//
// All mocks are safe for concurrent use. They record calls so tests can
// assert on counts and arguments, and expose fields that control results.
//
// Typical usage:
//
//	stream := mock.NewInputStream(audio.InputFormat)
//	mic := &mock.Microphone{Stream: stream}
//	stream.Push(make([]float32, 4096)) // delivered by the next Read
//
//	out := &mock.Output{}
//	out.SetTime(0)
//	v, _ := out.Schedule(frame, 0)
//	out.Voices()[0].Finish() // simulate natural end of playback
package mock

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/aria/pkg/audio"
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Microphone.Open] invocation.
type OpenCall struct {
	Want audio.Format
}

// Microphone is a mock implementation of [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// Stream is returned by Open when OpenErr is nil. When it is nil or has
	// been closed by a previous holder, Open replaces it with a fresh stream.
	Stream *InputStream

	// OpenErr is returned by Open when non-nil.
	OpenErr error

	// OpenCalls records all Open invocations.
	OpenCalls []OpenCall
}

var _ audio.Microphone = (*Microphone)(nil)

// Open implements [audio.Microphone].
func (m *Microphone) Open(_ context.Context, want audio.Format) (audio.InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls = append(m.OpenCalls, OpenCall{Want: want})
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	if m.Stream == nil || m.Stream.Closed() {
		m.Stream = NewInputStream(want)
	}
	return m.Stream, nil
}

// Current returns the stream handed out by the most recent Open, or nil.
func (m *Microphone) Current() *InputStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Stream
}

// OpenCount returns the number of Open calls.
func (m *Microphone) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.OpenCalls)
}

// ─── InputStream ──────────────────────────────────────────────────────────────

// errStreamClosed is returned by Read after Close.
var errStreamClosed = errors.New("mock: input stream closed")

// InputStream is a scripted [audio.InputStream]. Buffers pushed with
// [InputStream.Push] are returned by successive Read calls.
type InputStream struct {
	format audio.Format
	data   chan []float32
	done   chan struct{}
	once   sync.Once

	mu         sync.Mutex
	closeCount int
}

var _ audio.InputStream = (*InputStream)(nil)

// NewInputStream returns a stream delivering samples in format f.
func NewInputStream(f audio.Format) *InputStream {
	return &InputStream{
		format: f,
		data:   make(chan []float32, 64),
		done:   make(chan struct{}),
	}
}

// Push queues samples for a later Read. It blocks if 64 buffers are pending.
func (s *InputStream) Push(samples []float32) {
	select {
	case s.data <- samples:
	case <-s.done:
	}
}

// EndOfStream makes Read return io.EOF once pushed buffers are consumed.
// Push must not be called afterwards.
func (s *InputStream) EndOfStream() {
	close(s.data)
}

// Format implements [audio.InputStream].
func (s *InputStream) Format() audio.Format { return s.format }

// Read implements [audio.InputStream]. A pushed buffer larger than buf is
// truncated to len(buf).
func (s *InputStream) Read(buf []float32) (int, error) {
	select {
	case <-s.done:
		return 0, errStreamClosed
	case samples, ok := <-s.data:
		if !ok {
			return 0, io.EOF
		}
		return copy(buf, samples), nil
	}
}

// Close implements [audio.InputStream].
func (s *InputStream) Close() error {
	s.mu.Lock()
	s.closeCount++
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

// Closed reports whether Close has been called at least once.
func (s *InputStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount > 0
}

// ─── Output ───────────────────────────────────────────────────────────────────

// ScheduleCall records the arguments of a single [Output.Schedule] invocation.
type ScheduleCall struct {
	Frame audio.PlaybackFrame
	At    time.Duration
}

// Output is a mock [audio.Output] with a manually driven clock. Voices only
// finish when the test calls [Voice.Finish] or [Output.FinishAll].
type Output struct {
	mu sync.Mutex

	now    time.Duration
	voices []*Voice

	// ScheduleErr is returned by Schedule when non-nil.
	ScheduleErr error

	// ScheduleCalls records all Schedule invocations.
	ScheduleCalls []ScheduleCall
}

var _ audio.Output = (*Output)(nil)

// SetTime sets the value returned by CurrentTime.
func (o *Output) SetTime(t time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = t
}

// CurrentTime implements [audio.Output].
func (o *Output) CurrentTime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Schedule implements [audio.Output].
func (o *Output) Schedule(f audio.PlaybackFrame, at time.Duration) (audio.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ScheduleCalls = append(o.ScheduleCalls, ScheduleCall{Frame: f, At: at})
	if o.ScheduleErr != nil {
		return nil, o.ScheduleErr
	}
	v := &Voice{At: at, done: make(chan struct{})}
	o.voices = append(o.voices, v)
	return v, nil
}

// Voices returns every voice scheduled so far, in schedule order.
func (o *Output) Voices() []*Voice {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Voice, len(o.voices))
	copy(out, o.voices)
	return out
}

// Starts returns the start offsets of all Schedule calls, in order.
func (o *Output) Starts() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]time.Duration, len(o.ScheduleCalls))
	for i, c := range o.ScheduleCalls {
		out[i] = c.At
	}
	return out
}

// FinishAll completes every scheduled voice.
func (o *Output) FinishAll() {
	for _, v := range o.Voices() {
		v.Finish()
	}
}

// ─── Voice ────────────────────────────────────────────────────────────────────

// Voice is a mock [audio.Voice].
type Voice struct {
	// At is the start offset the voice was scheduled at.
	At time.Duration

	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	stopCount int
}

var _ audio.Voice = (*Voice)(nil)

// Finish simulates natural completion. Safe to call more than once.
func (v *Voice) Finish() {
	v.once.Do(func() { close(v.done) })
}

// Stop implements [audio.Voice].
func (v *Voice) Stop() {
	v.mu.Lock()
	v.stopCount++
	v.mu.Unlock()
	v.Finish()
}

// Stopped reports how many times Stop was called.
func (v *Voice) Stopped() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopCount
}

// Done implements [audio.Voice].
func (v *Voice) Done() <-chan struct{} { return v.done }
