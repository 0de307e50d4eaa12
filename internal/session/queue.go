package session

import (
	"sync"

	"github.com/MrWong99/aria/pkg/audio"
)

// DefaultQueueFrames is the default capacity of the pending-frame queue,
// about eight seconds of 4096-sample frames at 16 kHz.
const DefaultQueueFrames = 32

// frameQueue is a bounded FIFO between the capture goroutine and the session
// loop. When full, the oldest frame is discarded to make room.
//
// push never blocks. notify is signalled (capacity one) after every push.
type frameQueue struct {
	limit  int
	onDrop func()
	notify chan struct{}

	mu     sync.Mutex
	frames []audio.EncodedChunk
}

func newFrameQueue(limit int, onDrop func()) *frameQueue {
	if limit <= 0 {
		limit = DefaultQueueFrames
	}
	return &frameQueue{
		limit:  limit,
		onDrop: onDrop,
		notify: make(chan struct{}, 1),
		frames: make([]audio.EncodedChunk, 0, limit),
	}
}

func (q *frameQueue) push(c audio.EncodedChunk) {
	q.mu.Lock()
	dropped := false
	if len(q.frames) == q.limit {
		copy(q.frames, q.frames[1:])
		q.frames = q.frames[:len(q.frames)-1]
		dropped = true
	}
	q.frames = append(q.frames, c)
	q.mu.Unlock()

	if dropped && q.onDrop != nil {
		q.onDrop()
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// take removes and returns every queued frame in push order.
func (q *frameQueue) take() []audio.EncodedChunk {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil
	}
	out := make([]audio.EncodedChunk, len(q.frames))
	copy(out, q.frames)
	q.frames = q.frames[:0]
	return out
}

func (q *frameQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
