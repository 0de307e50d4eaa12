// Package live defines the interface for duplex voice sessions with a remote
// speech model.
//
// A session accepts a continuous stream of encoded microphone frames and
// returns synthesised speech as it is produced. Everything the remote side
// reports (readiness, audio, text, turn boundaries, failures) arrives as a
// typed [Event] on a single channel, in the order the remote sent it.
//
// Implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/aria/pkg/audio"
)

var (
	// ErrTransport marks a failure of the remote session: a protocol error
	// reported by the server or an unexpected connection loss. Sessions are
	// never retried automatically.
	ErrTransport = errors.New("live: transport failure")

	// ErrSessionClosed is returned by [Session.SendFrame] after Close.
	ErrSessionClosed = errors.New("live: session closed")
)

// EventKind identifies the type of an [Event].
type EventKind int

const (
	// EventReady is emitted once, when the remote acknowledges the session
	// setup. Frames must not be sent before it.
	EventReady EventKind = iota + 1

	// EventAudio carries one chunk of synthesised speech in [Event.Audio].
	EventAudio

	// EventText carries a text part of the model's turn in [Event.Text].
	EventText

	// EventTurnComplete marks the end of a model turn.
	EventTurnComplete

	// EventInterrupted reports that the model stopped its turn early because
	// the user started speaking. Audio already queued should be cut off.
	EventInterrupted

	// EventError reports a remote error. [Event.Err] wraps [ErrTransport].
	EventError

	// EventClosed is the last event of a session that ended without a local
	// Close. [Event.Err] wraps [ErrTransport].
	EventClosed
)

// String returns a human-readable label for the kind.
func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "Ready"
	case EventAudio:
		return "Audio"
	case EventText:
		return "Text"
	case EventTurnComplete:
		return "TurnComplete"
	case EventInterrupted:
		return "Interrupted"
	case EventError:
		return "Error"
	case EventClosed:
		return "Closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one notification from a remote session.
type Event struct {
	Kind  EventKind
	Audio audio.EncodedChunk
	Text  string
	Err   error
}

// SessionConfig holds the parameters for a new session.
type SessionConfig struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// Voice is the prebuilt voice name, e.g. "Kore".
	Voice string

	// Instructions is the system instruction for the session.
	Instructions string
}

// Provider opens duplex voice sessions.
type Provider interface {
	// Connect dials the remote and sends the session setup. It returns as
	// soon as the setup is written; readiness arrives later as [EventReady].
	// Cancelling ctx aborts a pending dial.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is one open duplex connection.
type Session interface {
	// SendFrame uploads one encoded microphone frame. It must only be called
	// after [EventReady] has been received.
	SendFrame(ctx context.Context, chunk audio.EncodedChunk) error

	// Events returns the event channel. The channel is closed when the
	// session ends, after any final [EventClosed].
	Events() <-chan Event

	// Close ends the session and releases the connection. Idempotent; no
	// [EventClosed] is emitted for a local close.
	Close() error
}
