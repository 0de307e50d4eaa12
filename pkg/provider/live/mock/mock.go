// Package mock provides test doubles for [live.Provider] and [live.Session].
//
// A [Session] is driven from the test: [Session.Emit] injects remote events
// and SentFrames reports what the code under test uploaded.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aria/pkg/audio"
	"github.com/MrWong99/aria/pkg/provider/live"
)

var _ live.Provider = (*Provider)(nil)
var _ live.Session = (*Session)(nil)

// Provider is a mock [live.Provider].
type Provider struct {
	mu sync.Mutex

	// Sessions are handed out by Connect in order. When exhausted, a fresh
	// Session is created.
	Sessions []*Session

	// ConnectErr is returned by Connect when non-nil.
	ConnectErr error

	// Block makes Connect wait until it is closed or ctx is cancelled.
	Block chan struct{}

	// ConnectCalls records all Connect invocations.
	ConnectCalls []live.SessionConfig

	handed []*Session
}

// Connect implements [live.Provider].
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, cfg)
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	var s *Session
	if len(p.Sessions) > 0 {
		s = p.Sessions[0]
		p.Sessions = p.Sessions[1:]
	} else {
		s = NewSession()
	}
	p.handed = append(p.handed, s)
	return s, nil
}

// ConnectCount returns the number of Connect calls.
func (p *Provider) ConnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// Last returns the most recent session handed out, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.handed) == 0 {
		return nil
	}
	return p.handed[len(p.handed)-1]
}

// Session is a mock [live.Session].
type Session struct {
	events chan live.Event
	done   chan struct{}
	once   sync.Once

	mu         sync.Mutex
	sent       []audio.EncodedChunk
	sendErr    error
	closeCount int
	sentNotify chan struct{}
}

// NewSession returns an open mock session.
func NewSession() *Session {
	return &Session{
		events:     make(chan live.Event, 64),
		done:       make(chan struct{}),
		sentNotify: make(chan struct{}, 1),
	}
}

// Emit injects ev as if it came from the remote. It is dropped after Close.
func (s *Session) Emit(ev live.Event) {
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

// SetSendErr makes subsequent SendFrame calls fail with err.
func (s *Session) SetSendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// SendFrame implements [live.Session].
func (s *Session) SendFrame(_ context.Context, chunk audio.EncodedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return live.ErrSessionClosed
	default:
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, chunk)
	select {
	case s.sentNotify <- struct{}{}:
	default:
	}
	return nil
}

// SentFrames returns a copy of every frame received by SendFrame.
func (s *Session) SentFrames() []audio.EncodedChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.EncodedChunk, len(s.sent))
	copy(out, s.sent)
	return out
}

// Sent is signalled (non-blocking, capacity one) after each accepted frame.
func (s *Session) Sent() <-chan struct{} { return s.sentNotify }

// Events implements [live.Session]. The channel is never closed by the
// mock; tests end a session with Emit(EventClosed) or Close.
func (s *Session) Events() <-chan live.Event { return s.events }

// Close implements [live.Session].
func (s *Session) Close() error {
	s.mu.Lock()
	s.closeCount++
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

// CloseCount returns the number of Close calls.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
