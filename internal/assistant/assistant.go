// Package assistant applies Aria's degradation policy on top of a
// [content.Provider].
//
// Insights and chat never fail from the caller's point of view: insights
// fall back to a fixed nominal summary and chat ends with a single apology
// fragment. Image generation errors are returned as is.
package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/MrWong99/aria/internal/observe"
	"github.com/MrWong99/aria/pkg/provider/content"
)

// Default degraded payloads.
const (
	DefaultSummary = "Sistemas nominales. Estoy lista, Papá."
	DefaultApology = "Papá, mi conexión neuronal ha parpadeado. ¿Podemos reestablecer el vínculo?"
)

// Operation labels used in metrics and spans.
const (
	opInsights = "insights"
	opChat     = "chat"
	opImage    = "image"
)

// Service wraps a content provider with the degradation policy.
type Service struct {
	provider content.Provider
	name     string
	metrics  *observe.Metrics
	summary  string
	apology  string
}

// Option configures a [Service].
type Option func(*Service)

// WithMetrics records request and degradation counts on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithProviderName sets the provider label on recorded metrics.
func WithProviderName(name string) Option {
	return func(s *Service) { s.name = name }
}

// WithSummary overrides [DefaultSummary].
func WithSummary(text string) Option {
	return func(s *Service) {
		if text != "" {
			s.summary = text
		}
	}
}

// WithApology overrides [DefaultApology].
func WithApology(text string) Option {
	return func(s *Service) {
		if text != "" {
			s.apology = text
		}
	}
}

// New creates a Service over p.
func New(p content.Provider, opts ...Option) *Service {
	s := &Service{
		provider: p,
		name:     "content",
		summary:  DefaultSummary,
		apology:  DefaultApology,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Healthy reports whether the underlying provider can currently serve
// requests. Providers without a health notion are always healthy.
func (s *Service) Healthy() bool {
	if h, ok := s.provider.(interface{ Healthy() bool }); ok {
		return h.Healthy()
	}
	return true
}

// Insights summarises systemData. It always returns a usable value; on any
// provider failure the nominal default summary is returned.
func (s *Service) Insights(ctx context.Context, systemData any) *content.Insights {
	ctx, span := observe.StartSpan(ctx, "assistant.insights")
	start := time.Now()

	in, err := s.provider.Insights(ctx, systemData)
	if err == nil && (in == nil || in.Summary == "") {
		err = content.ErrInvalidInsights
	}
	s.record(ctx, opInsights, err, start)
	observe.EndSpan(span, err)

	if err != nil {
		observe.Logger(ctx).Warn("insights degraded", "err", err)
		s.metrics.RecordDegradation(ctx, opInsights)
		return s.defaultInsights()
	}
	if in.KeyMetrics == nil {
		in.KeyMetrics = []content.Metric{}
	}
	for i := range in.KeyMetrics {
		in.KeyMetrics[i].Trend = content.NormalizeTrend(in.KeyMetrics[i].Trend)
	}
	return in
}

// Chat streams the reply to message. The returned channel yields text
// fragments in order and is closed when the reply ends. If the provider
// fails at any point, one apology fragment is sent and the channel closes.
func (s *Service) Chat(ctx context.Context, history []content.Message, message string) <-chan string {
	out := make(chan string, 16)
	ctx, span := observe.StartSpan(ctx, "assistant.chat")
	start := time.Now()

	chunks, err := s.provider.StreamChat(ctx, history, message)
	if err != nil {
		s.record(ctx, opChat, err, start)
		observe.EndSpan(span, err)
		s.apologise(ctx, out, err)
		close(out)
		return out
	}

	go func() {
		defer close(out)
		var streamErr error
		for c := range chunks {
			if c.Err != nil {
				streamErr = c.Err
				break
			}
			if c.Text == "" {
				continue
			}
			select {
			case out <- c.Text:
			case <-ctx.Done():
				streamErr = ctx.Err()
			}
			if streamErr != nil {
				break
			}
		}
		s.record(ctx, opChat, streamErr, start)
		observe.EndSpan(span, streamErr)
		if streamErr != nil && ctx.Err() == nil {
			s.apologise(ctx, out, streamErr)
		}
		// Let the producer exit if we stopped early.
		go func() {
			for range chunks {
			}
		}()
	}()
	return out
}

// GenerateImage returns a data URL for an image matching prompt.
func (s *Service) GenerateImage(ctx context.Context, prompt string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "assistant.image")
	start := time.Now()

	url, err := s.provider.GenerateImage(ctx, strings.TrimSpace(prompt))
	s.record(ctx, opImage, err, start)
	observe.EndSpan(span, err)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) defaultInsights() *content.Insights {
	return &content.Insights{Summary: s.summary, KeyMetrics: []content.Metric{}}
}

// apologise sends the apology fragment. out must have buffer space.
func (s *Service) apologise(ctx context.Context, out chan<- string, cause error) {
	observe.Logger(ctx).Warn("chat degraded", "err", cause)
	s.metrics.RecordDegradation(ctx, opChat)
	select {
	case out <- s.apology:
	case <-ctx.Done():
	}
}

func (s *Service) record(ctx context.Context, op string, err error, start time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordContentRequest(ctx, s.name, op, status, time.Since(start))
}
