// Package session runs the live voice session: one duplex connection to the
// remote speech model at a time, fed by the microphone capture pipeline and
// draining into the playback scheduler.
//
// The [Controller] owns the lifecycle. Open moves Idle to Opening; the
// remote's ready event moves Opening to Listening; scheduled inbound audio
// moves Listening to Speaking and a drained playback queue moves it back. A
// remote error, a remote close or Close moves any state through Closing to
// Idle.
//
// Each session runs a single event loop goroutine that handles captured
// frames, remote events and playback-drained notifications sequentially.
// Cleanup is idempotent and reachable from every state, including a
// half-finished Open. Failed sessions are never retried.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/aria/internal/observe"
	"github.com/MrWong99/aria/pkg/audio"
	"github.com/MrWong99/aria/pkg/audio/capture"
	"github.com/MrWong99/aria/pkg/audio/playback"
	"github.com/MrWong99/aria/pkg/provider/live"
)

// ErrAborted is returned by [Controller.Open] when the session was closed
// before the remote connection completed.
var ErrAborted = errors.New("session: open aborted")

// subscriberBuffer is the channel capacity of each [Controller.Subscribe]
// subscriber. Updates to a full subscriber are dropped.
const subscriberBuffer = 16

// Config holds the dependencies of a [Controller].
type Config struct {
	// Provider dials remote sessions. Required.
	Provider live.Provider

	// Microphone is the capture source. Required.
	Microphone audio.Microphone

	// Output is the playback device. Required.
	Output audio.Output

	// Session is passed to every Connect call.
	Session live.SessionConfig

	// FrameSamples is the capture frame size. Default [audio.DefaultFrameSamples].
	FrameSamples int

	// QueueFrames bounds the pending-frame queue. Default [DefaultQueueFrames].
	QueueFrames int

	// Metrics records session telemetry. Default [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Update is published to subscribers on every state change.
type Update struct {
	SessionID string
	State     State
	Status    Status
}

// Info describes the current session.
type Info struct {
	// ID is empty while idle.
	ID        string
	State     State
	Status    Status
	StartedAt time.Time
}

// Controller manages the live voice session. All exported methods are safe
// for concurrent use.
type Controller struct {
	provider     live.Provider
	mic          audio.Microphone
	out          audio.Output
	frameSamples int
	queueFrames  int
	metrics      *observe.Metrics

	// openMu serialises Open. Close never takes it so it can abort an Open
	// that is waiting on the remote.
	openMu sync.Mutex

	mu         sync.Mutex
	sessionCfg live.SessionConfig
	cur        *liveSession
	state      State
	subs       map[int]chan Update
	nextSub    int
}

// liveSession is the per-session state. Fields below the marker are guarded
// by Controller.mu.
type liveSession struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
	capture *capture.Pipeline
	sched   *playback.Scheduler
	queue   *frameQueue
	drained chan struct{}
	cleaned chan struct{}

	// guarded by Controller.mu
	handle live.Session
	torn   bool
	opened bool
}

// New creates a Controller. It returns an error when a required dependency
// is missing.
func New(cfg Config) (*Controller, error) {
	var errs []error
	if cfg.Provider == nil {
		errs = append(errs, errors.New("session: provider is required"))
	}
	if cfg.Microphone == nil {
		errs = append(errs, errors.New("session: microphone is required"))
	}
	if cfg.Output == nil {
		errs = append(errs, errors.New("session: output is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Controller{
		provider:     cfg.Provider,
		mic:          cfg.Microphone,
		out:          cfg.Output,
		sessionCfg:   cfg.Session,
		frameSamples: cfg.FrameSamples,
		queueFrames:  cfg.QueueFrames,
		metrics:      cfg.Metrics,
		subs:         make(map[int]chan Update),
	}, nil
}

// Open starts a new session, closing any active one first. It acquires the
// microphone, then dials the remote. Frames captured before the remote is
// ready are queued and flushed in order once it is.
//
// Open returns after the connection is established; readiness is reported
// asynchronously through [Controller.Subscribe]. On failure every acquired
// resource is released and the controller is idle. A refused microphone
// yields an error wrapping [audio.ErrPermissionDenied]. Cancelling ctx aborts
// a pending dial; once Open has returned, ctx no longer affects the session.
func (c *Controller) Open(ctx context.Context) (info Info, err error) {
	ctx, span := observe.StartSpan(ctx, "live.open")
	defer func() { observe.EndSpan(span, err) }()

	c.openMu.Lock()
	defer c.openMu.Unlock()

	if old := c.current(); old != nil {
		c.teardown(old, "replaced")
	}

	s := c.newSession()
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	c.mu.Lock()
	c.cur = s
	sessionCfg := c.sessionCfg
	c.setStateLocked(StateOpening)
	c.mu.Unlock()

	if err := s.capture.Start(s.ctx, s.queue.push); err != nil {
		c.teardown(s, "capture failed")
		return Info{}, fmt.Errorf("session: open: %w", err)
	}
	c.mu.Lock()
	torn := s.torn
	c.mu.Unlock()
	if torn {
		// Closed while the microphone was being acquired; teardown may
		// have stopped the pipeline before it started.
		s.capture.Stop()
		return Info{}, ErrAborted
	}

	h, err := c.provider.Connect(s.ctx, sessionCfg)
	if err != nil {
		aborted := s.ctx.Err() != nil && ctx.Err() == nil
		c.teardown(s, "connect failed")
		if aborted {
			return Info{}, ErrAborted
		}
		return Info{}, fmt.Errorf("session: connect: %w", err)
	}

	// From here on ctx must not reach the session. A false stop means the
	// cancellation already fired, so the dial result is discarded.
	cancelled := !stop()

	c.mu.Lock()
	if c.cur != s || s.torn {
		c.mu.Unlock()
		_ = h.Close()
		return Info{}, ErrAborted
	}
	s.handle = h
	if cancelled || s.ctx.Err() != nil {
		c.mu.Unlock()
		c.teardown(s, "cancelled")
		return Info{}, ErrAborted
	}
	s.opened = true
	info = c.infoLocked()
	c.mu.Unlock()

	c.metrics.RecordSessionOpened(s.ctx)
	slog.Info("live session opened", "session_id", s.id)

	go c.loop(s, h)
	return info, nil
}

// Close ends the active session and waits for cleanup to finish. It is a
// no-op when idle and may be called from any state.
func (c *Controller) Close() error {
	if s := c.current(); s != nil {
		c.teardown(s, "closed")
	}
	return nil
}

// Status returns the current status projection.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Project(c.state)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetSessionConfig replaces the configuration used by later Open calls. The
// active session, if any, keeps its original configuration.
func (c *Controller) SetSessionConfig(cfg live.SessionConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionCfg = cfg
}

// Info describes the current session.
func (c *Controller) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.infoLocked()
}

// Subscribe registers for state updates. The returned cancel function
// unregisters and closes the channel. A subscriber that falls behind misses
// updates rather than blocking the controller.
func (c *Controller) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) current() *liveSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *Controller) infoLocked() Info {
	info := Info{State: c.state, Status: Project(c.state)}
	if c.cur != nil {
		info.ID = c.cur.id
		info.StartedAt = c.cur.started
	}
	return info
}

// setStateLocked changes the state and publishes the update. The caller
// holds c.mu; sends are non-blocking so publication order matches
// transition order.
func (c *Controller) setStateLocked(st State) {
	if c.state == st {
		return
	}
	c.state = st
	up := Update{State: st, Status: Project(st)}
	if c.cur != nil {
		up.SessionID = c.cur.id
	}
	for _, ch := range c.subs {
		select {
		case ch <- up:
		default:
		}
	}
}

// transition moves s to st if s is still the live, untorn session and the
// current state is one of from.
func (c *Controller) transition(s *liveSession, st State, from ...State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != s || s.torn {
		return false
	}
	for _, f := range from {
		if c.state == f {
			c.setStateLocked(st)
			return true
		}
	}
	return false
}

func (c *Controller) newSession() *liveSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &liveSession{
		id:      uuid.NewString(),
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now().UTC(),
		drained: make(chan struct{}, 1),
		cleaned: make(chan struct{}),
	}
	s.capture = capture.New(c.mic, capture.WithFrameSamples(c.frameSamples))
	s.sched = playback.New(c.out, playback.WithOnDrained(func() {
		select {
		case s.drained <- struct{}{}:
		default:
		}
	}))
	s.queue = newFrameQueue(c.queueFrames, func() {
		c.metrics.FramesDropped.Add(ctx, 1)
	})
	return s
}

// teardown releases every resource of s. The first caller does the work;
// concurrent and later callers wait until it has finished. It never waits on
// the session loop, so the loop may call it.
func (c *Controller) teardown(s *liveSession, reason string) {
	c.mu.Lock()
	if s.torn {
		c.mu.Unlock()
		<-s.cleaned
		return
	}
	s.torn = true
	h := s.handle
	s.handle = nil
	opened := s.opened
	if c.cur == s {
		c.setStateLocked(StateClosing)
	}
	c.mu.Unlock()

	s.cancel()
	s.capture.Stop()
	s.sched.Reset()
	if h != nil {
		if err := h.Close(); err != nil {
			slog.Warn("session: close remote", "session_id", s.id, "err", err)
		}
	}
	if opened {
		c.metrics.RecordSessionClosed(context.Background(), time.Since(s.started), reason)
	}

	c.mu.Lock()
	if c.cur == s {
		c.setStateLocked(StateIdle)
		c.cur = nil
	}
	c.mu.Unlock()
	close(s.cleaned)

	slog.Info("live session closed", "session_id", s.id, "reason", reason, "frames_captured", s.capture.Frames())
}

// loop is the session's event loop. It tears the session down before it
// exits, whatever the cause.
func (c *Controller) loop(s *liveSession, h live.Session) {
	events := h.Events()
	ready := false
	for {
		select {
		case <-s.ctx.Done():
			c.teardown(s, "cancelled")
			return

		case ev, ok := <-events:
			if !ok {
				c.teardown(s, "remote closed")
				return
			}
			if !c.handleEvent(s, h, ev, &ready) {
				return
			}

		case <-s.queue.notify:
			if ready && !c.flush(s, h) {
				return
			}

		case <-s.drained:
			if s.sched.Active() == 0 {
				c.transition(s, StateListening, StateSpeaking)
			}
		}
	}
}

// handleEvent applies one remote event. It returns false when the loop
// should exit.
func (c *Controller) handleEvent(s *liveSession, h live.Session, ev live.Event, ready *bool) bool {
	switch ev.Kind {
	case live.EventReady:
		if *ready {
			return true
		}
		*ready = true
		c.transition(s, StateListening, StateOpening)
		return c.flush(s, h)

	case live.EventAudio:
		c.playChunk(s, ev.Audio)

	case live.EventText:
		slog.Debug("session: model text", "session_id", s.id, "text", ev.Text)

	case live.EventTurnComplete:
		slog.Debug("session: turn complete", "session_id", s.id)

	case live.EventInterrupted:
		s.sched.Reset()
		c.transition(s, StateListening, StateSpeaking)

	case live.EventError, live.EventClosed:
		slog.Warn("session: remote ended session",
			"session_id", s.id, "kind", ev.Kind.String(), "err", ev.Err)
		c.teardown(s, "remote "+ev.Kind.String())
		return false

	default:
		slog.Debug("session: ignoring event", "session_id", s.id, "kind", ev.Kind.String())
	}
	return true
}

// playChunk decodes an inbound chunk and schedules it. Malformed chunks are
// dropped.
func (c *Controller) playChunk(s *liveSession, chunk audio.EncodedChunk) {
	b, err := audio.Decode(chunk)
	var f audio.PlaybackFrame
	if err == nil {
		f, err = audio.ToPlayback(b, chunk.SampleRate)
	}
	if err != nil {
		c.metrics.CodecErrors.Add(s.ctx, 1)
		slog.Warn("session: dropping inbound audio", "session_id", s.id, "err", err)
		return
	}

	if _, err := s.sched.Schedule(f); err != nil {
		slog.Warn("session: schedule inbound audio", "session_id", s.id, "err", err)
		return
	}
	c.metrics.ChunksScheduled.Add(s.ctx, 1)
	c.transition(s, StateSpeaking, StateListening)
}

// flush forwards every queued frame in capture order. A send failure tears
// the session down and returns false.
func (c *Controller) flush(s *liveSession, h live.Session) bool {
	for _, f := range s.queue.take() {
		if err := h.SendFrame(s.ctx, f); err != nil {
			if s.ctx.Err() != nil {
				return false
			}
			slog.Warn("session: send frame", "session_id", s.id, "err", err)
			c.teardown(s, "send failed")
			return false
		}
		c.metrics.FramesSent.Add(s.ctx, 1)
	}
	return true
}
