package output_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/aria/pkg/audio"
	"github.com/MrWong99/aria/pkg/audio/output"
	"github.com/MrWong99/aria/pkg/audio/playback"
)

func constFrame(n int, v float32) audio.PlaybackFrame {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return audio.PlaybackFrame{Samples: s, SampleRate: 1000}
}

func isDone(v audio.Voice) bool {
	select {
	case <-v.Done():
		return true
	default:
		return false
	}
}

func TestTimeline_ClockAdvancesWithRender(t *testing.T) {
	tl := output.NewTimeline(1000)
	if got := tl.CurrentTime(); got != 0 {
		t.Fatalf("CurrentTime = %v, want 0", got)
	}
	tl.Render(make([]float32, 250))
	if got := tl.CurrentTime(); got != 250*time.Millisecond {
		t.Errorf("CurrentTime = %v, want 250ms", got)
	}
}

func TestTimeline_PlacesSamplesAtOffset(t *testing.T) {
	tl := output.NewTimeline(1000)
	v, err := tl.Schedule(constFrame(4, 0.5), 2*time.Millisecond)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	buf := make([]float32, 4)
	tl.Render(buf)
	want := []float32{0, 0, 0.5, 0.5}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("block 1 sample %d = %v, want %v", i, buf[i], want[i])
		}
	}
	if isDone(v) {
		t.Fatal("voice finished early")
	}

	tl.Render(buf)
	want = []float32{0.5, 0.5, 0, 0}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("block 2 sample %d = %v, want %v", i, buf[i], want[i])
		}
	}
	if !isDone(v) {
		t.Error("voice should be done after its last sample rendered")
	}
	if tl.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", tl.Pending())
	}
}

func TestTimeline_MixesAndClamps(t *testing.T) {
	tl := output.NewTimeline(1000)
	if _, err := tl.Schedule(constFrame(2, 0.75), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Schedule(constFrame(2, 0.75), 0); err != nil {
		t.Fatal(err)
	}
	buf := make([]float32, 2)
	tl.Render(buf)
	if buf[0] != 1 || buf[1] != 1 {
		t.Errorf("mixed = %v, want clamped [1 1]", buf)
	}
}

func TestTimeline_StopSilencesVoice(t *testing.T) {
	tl := output.NewTimeline(1000)
	v, err := tl.Schedule(constFrame(10, 0.5), 0)
	if err != nil {
		t.Fatal(err)
	}
	v.Stop()
	v.Stop()
	if !isDone(v) {
		t.Fatal("stopped voice should be done")
	}
	buf := make([]float32, 10)
	tl.Render(buf)
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d = %v, want silence", i, s)
		}
	}
}

func TestTimeline_PastOffsetStartsNow(t *testing.T) {
	tl := output.NewTimeline(1000)
	tl.Render(make([]float32, 100))
	if _, err := tl.Schedule(constFrame(1, 0.25), 0); err != nil {
		t.Fatal(err)
	}
	buf := make([]float32, 1)
	tl.Render(buf)
	if buf[0] != 0.25 {
		t.Errorf("sample = %v, want 0.25", buf[0])
	}
}

// The scheduler and timeline together produce contiguous playback: two
// frames scheduled back to back render without a gap and raise drained once.
func TestTimeline_WithScheduler(t *testing.T) {
	tl := output.NewTimeline(1000)
	drained := make(chan struct{}, 2)
	s := playback.New(tl, playback.WithOnDrained(func() { drained <- struct{}{} }))

	if _, err := s.Schedule(constFrame(3, 0.25)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule(constFrame(3, 0.5)); err != nil {
		t.Fatal(err)
	}

	buf := make([]float32, 6)
	tl.Render(buf)
	want := []float32{0.25, 0.25, 0.25, 0.5, 0.5, 0.5}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, buf[i], want[i])
		}
	}

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for drained")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	blocks int
	err    error
}

func (r *recordingSink) Write(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks++
	return r.err
}

func TestTimeline_RunStopsOnCancel(t *testing.T) {
	tl := output.NewTimeline(1000)
	sink := &recordingSink{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := tl.Run(ctx, sink)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run err = %v, want deadline exceeded", err)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.blocks == 0 {
		t.Error("expected at least one rendered block")
	}
}

func TestTimeline_RunReturnsSinkError(t *testing.T) {
	tl := output.NewTimeline(1000)
	boom := errors.New("boom")
	err := tl.Run(context.Background(), &recordingSink{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("Run err = %v, want boom", err)
	}
}
