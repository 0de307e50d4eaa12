package session

import (
	"testing"

	"github.com/MrWong99/aria/pkg/audio"
)

func TestProject(t *testing.T) {
	tests := []struct {
		state State
		want  Status
	}{
		{StateIdle, StatusIdle},
		{StateOpening, StatusIdle},
		{StateListening, StatusListening},
		{StateSpeaking, StatusSpeaking},
		{StateClosing, StatusIdle},
	}
	for _, tc := range tests {
		t.Run(tc.state.String(), func(t *testing.T) {
			if got := Project(tc.state); got != tc.want {
				t.Errorf("Project(%v) = %q, want %q", tc.state, got, tc.want)
			}
		})
	}
}

func TestProject_NeverThinking(t *testing.T) {
	for s := StateIdle; s <= StateClosing+1; s++ {
		if Project(s) == StatusThinking {
			t.Errorf("Project(%v) = thinking", s)
		}
	}
}

func TestState_StringUnknown(t *testing.T) {
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("String() = %q", got)
	}
}

func TestFrameQueue_DropsOldest(t *testing.T) {
	dropped := 0
	q := newFrameQueue(2, func() { dropped++ })

	for _, d := range []string{"a", "b", "c", "d"} {
		q.push(audio.EncodedChunk{Data: d})
	}

	got := q.take()
	if len(got) != 2 || got[0].Data != "c" || got[1].Data != "d" {
		t.Errorf("take() = %+v, want [c d]", got)
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if q.size() != 0 {
		t.Errorf("size after take = %d, want 0", q.size())
	}
	if q.take() != nil {
		t.Error("take on empty queue should return nil")
	}
}

func TestFrameQueue_NotifiesWithoutBlocking(t *testing.T) {
	q := newFrameQueue(0, nil)
	for range 5 {
		q.push(audio.EncodedChunk{})
	}
	select {
	case <-q.notify:
	default:
		t.Fatal("no notification after push")
	}
	if q.size() != 5 {
		t.Errorf("size = %d, want 5", q.size())
	}
	if q.limit != DefaultQueueFrames {
		t.Errorf("limit = %d, want default %d", q.limit, DefaultQueueFrames)
	}
}
