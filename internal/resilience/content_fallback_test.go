package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/aria/pkg/provider/content"
	"github.com/MrWong99/aria/pkg/provider/content/mock"
)

func newContentFallback(primary, secondary *mock.Provider) *ContentFallback {
	f := NewContentFallback(primary, "gemini", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	f.AddFallback("openai", secondary)
	return f
}

func TestContentFallback_Insights(t *testing.T) {
	primary := &mock.Provider{InsightsErr: errTest}
	secondary := &mock.Provider{InsightsResult: &content.Insights{Summary: "ok"}}
	f := newContentFallback(primary, secondary)

	got, err := f.Insights(context.Background(), "data")
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if got.Summary != "ok" {
		t.Errorf("Summary = %q", got.Summary)
	}
	if len(primary.InsightsCalls) != 1 || len(secondary.InsightsCalls) != 1 {
		t.Errorf("calls = %d/%d, want 1/1", len(primary.InsightsCalls), len(secondary.InsightsCalls))
	}
}

func TestContentFallback_StreamChatFailsOverOnStart(t *testing.T) {
	primary := &mock.Provider{ChatErr: errTest}
	secondary := &mock.Provider{ChatChunks: []content.Chunk{{Text: "Hola"}}}
	f := newContentFallback(primary, secondary)

	history := []content.Message{{Role: content.RoleUser, Content: "antes"}}
	ch, err := f.StreamChat(context.Background(), history, "hola")
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	var text string
	for c := range ch {
		text += c.Text
	}
	if text != "Hola" {
		t.Errorf("text = %q", text)
	}
	if got := secondary.ChatCalls[0]; got.Message != "hola" || len(got.History) != 1 {
		t.Errorf("secondary call = %+v", got)
	}
}

func TestContentFallback_MidStreamErrorIsNotRetried(t *testing.T) {
	primary := &mock.Provider{ChatChunks: []content.Chunk{{Text: "Ho"}, {Err: errTest}}}
	secondary := &mock.Provider{ChatChunks: []content.Chunk{{Text: "never"}}}
	f := newContentFallback(primary, secondary)

	ch, err := f.StreamChat(context.Background(), nil, "hola")
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	var gotErr error
	for c := range ch {
		if c.Err != nil {
			gotErr = c.Err
		}
	}
	if !errors.Is(gotErr, errTest) {
		t.Errorf("stream err = %v, want errTest", gotErr)
	}
	if secondary.CallCount() != 0 {
		t.Error("secondary was called after the stream opened")
	}
}

func TestContentFallback_GenerateImageAllFail(t *testing.T) {
	f := newContentFallback(&mock.Provider{ImageErr: errTest}, &mock.Provider{ImageErr: errTest})
	if _, err := f.GenerateImage(context.Background(), "koi"); !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestContentFallback_Healthy(t *testing.T) {
	f := newContentFallback(&mock.Provider{ImageErr: errTest}, &mock.Provider{ImageErr: errTest})
	for range 2 {
		_, _ = f.GenerateImage(context.Background(), "koi")
	}
	if f.Healthy() {
		t.Error("Healthy = true with both breakers open")
	}
	if got := f.Names(); len(got) != 2 || got[0] != "gemini" {
		t.Errorf("Names = %v", got)
	}
}
