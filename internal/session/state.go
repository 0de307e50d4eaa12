package session

import "fmt"

// State is the lifecycle state of the live voice session.
type State int

const (
	// StateIdle means no session exists.
	StateIdle State = iota

	// StateOpening means the microphone is held and the remote session is
	// being dialled. Captured frames are queued, never sent.
	StateOpening

	// StateListening means the remote acknowledged the setup and captured
	// frames are forwarded as they arrive.
	StateListening

	// StateSpeaking means inbound audio is scheduled or playing.
	StateSpeaking

	// StateClosing means cleanup is in progress.
	StateClosing
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is the coarse, user-facing projection of [State].
type Status string

const (
	StatusIdle      Status = "idle"
	StatusListening Status = "listening"
	StatusThinking  Status = "thinking"
	StatusSpeaking  Status = "speaking"
)

// Project maps a controller state to its status. [StatusThinking] is never
// returned; it exists for consumers that track model latency themselves.
func Project(s State) Status {
	switch s {
	case StateListening:
		return StatusListening
	case StateSpeaking:
		return StatusSpeaking
	default:
		return StatusIdle
	}
}
