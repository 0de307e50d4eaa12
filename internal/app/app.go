// Package app wires the Aria subsystems into a running application.
//
// New builds the playback timeline, the live session controller, the
// assistant and the HTTP server. Run serves HTTP and renders audio until the
// context ends, and Shutdown tears everything down in order.
//
// For testing, inject doubles through [Providers] and the functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aria/internal/assistant"
	"github.com/MrWong99/aria/internal/config"
	"github.com/MrWong99/aria/internal/health"
	"github.com/MrWong99/aria/internal/observe"
	"github.com/MrWong99/aria/internal/resilience"
	"github.com/MrWong99/aria/internal/server"
	"github.com/MrWong99/aria/internal/session"
	"github.com/MrWong99/aria/pkg/audio"
	"github.com/MrWong99/aria/pkg/audio/output"
	"github.com/MrWong99/aria/pkg/provider/content"
	"github.com/MrWong99/aria/pkg/provider/live"
)

// ErrNoContentProvider is returned by every content call when no content
// provider is configured. The assistant degrades on it like on any failure.
var ErrNoContentProvider = errors.New("app: no content provider configured")

// NamedContent pairs a content provider with its configured name.
type NamedContent struct {
	Name     string
	Provider content.Provider
}

// Providers holds the constructed providers and devices. Populated by
// main.go via the config registry.
type Providers struct {
	// Content lists content providers in failover order. May be empty.
	Content []NamedContent

	// Live dials duplex voice sessions. Required.
	Live live.Provider

	// Microphone is the capture device. Nil means [audio.NoMicrophone].
	Microphone audio.Microphone

	// Sink receives rendered playback. Nil means [output.Discard].
	Sink output.Sink
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	listener       net.Listener

	timeline   *output.Timeline
	content    *resilience.ContentFallback
	assistant  *assistant.Service
	controller *session.Controller
	httpServer *http.Server

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records telemetry on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithListener serves HTTP on lis instead of listening on the configured
// address.
func WithListener(lis net.Listener) Option {
	return func(a *App) { a.listener = lis }
}

// WithCloser registers fn to run during Shutdown after the app's own
// subsystems.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Live == nil {
		return nil, errors.New("app: live provider is required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	mic := providers.Microphone
	if mic == nil {
		mic = audio.NoMicrophone
	}

	a.timeline = output.NewTimeline(cfg.Audio.Output.SampleRate)

	ctrl, err := session.New(session.Config{
		Provider:     providers.Live,
		Microphone:   mic,
		Output:       a.timeline,
		Session:      a.liveSessionConfig(cfg),
		FrameSamples: cfg.Audio.FrameSamples,
		QueueFrames:  cfg.Audio.QueueFrames,
		Metrics:      a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: live controller: %w", err)
	}
	a.controller = ctrl

	a.assistant = assistant.New(a.buildContent(),
		assistant.WithMetrics(a.metrics),
		assistant.WithProviderName(a.contentLabel()),
		assistant.WithSummary(cfg.Persona.FallbackSummary),
		assistant.WithApology(cfg.Persona.ChatApology),
	)

	checks := []health.Checker{health.Present("live", providers.Live != nil)}
	if a.content != nil {
		checks = append(checks, health.Available("content", a.content.Healthy))
	}
	srv, err := server.New(server.Config{
		Assistant:   a.assistant,
		Live:        a.controller,
		Health:      health.New(checks...),
		Metrics:     a.metricsHandler,
		Telemetry:   a.metrics,
		AllowOrigin: cfg.Server.AllowOrigin,
	})
	if err != nil {
		return nil, fmt.Errorf("app: server: %w", err)
	}
	a.httpServer = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if c, ok := providers.Sink.(interface{ Close() error }); ok {
		a.closers = append([]func() error{c.Close}, a.closers...)
	}

	slog.Info("app initialised",
		"listen", cfg.Server.ListenAddr,
		"content_providers", a.contentNames(),
		"frame_samples", cfg.Audio.FrameSamples,
		"queue_frames", cfg.Audio.QueueFrames,
	)
	return a, nil
}

// buildContent composes the configured content providers behind circuit
// breakers.
func (a *App) buildContent() content.Provider {
	if len(a.providers.Content) == 0 {
		return unavailable{}
	}
	fb := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  a.cfg.Resilience.MaxFailures,
		ResetTimeout: a.cfg.Resilience.ResetTimeout,
	}}
	first := a.providers.Content[0]
	a.content = resilience.NewContentFallback(first.Provider, first.Name, fb)
	for _, p := range a.providers.Content[1:] {
		a.content.AddFallback(p.Name, p.Provider)
	}
	return a.content
}

func (a *App) contentNames() []string {
	if a.content == nil {
		return nil
	}
	return a.content.Names()
}

// contentLabel is the metrics provider label: the single provider's name,
// or "fallback" when several are composed.
func (a *App) contentLabel() string {
	switch len(a.providers.Content) {
	case 0:
		return "none"
	case 1:
		return a.providers.Content[0].Name
	default:
		return "fallback"
	}
}

func (a *App) liveSessionConfig(cfg *config.Config) live.SessionConfig {
	return live.SessionConfig{
		Model:        cfg.Providers.Live.Model,
		Voice:        cfg.Providers.Live.Option("voice"),
		Instructions: cfg.Persona.LiveInstruction,
	}
}

// Controller returns the live session controller.
func (a *App) Controller() *session.Controller { return a.controller }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.httpServer.Handler }

// ApplyConfig applies the hot-reloadable parts of a changed config. A new
// live instruction affects live sessions opened afterwards.
func (a *App) ApplyConfig(cfg *config.Config, d config.ConfigDiff) {
	if d.LiveInstructionChanged {
		a.controller.SetSessionConfig(a.liveSessionConfig(cfg))
		slog.Info("live instruction updated")
	}
}

// Run serves HTTP and renders playback until ctx is cancelled or either
// fails. A clean shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	lis := a.listener
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", a.httpServer.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.httpServer.Addr, err)
		}
	}
	sink := a.providers.Sink
	if sink == nil {
		sink = output.Discard
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", lis.Addr().String())
		if err := a.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.timeline.Run(ctx, sink); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: playback: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown closes the live session, stops the HTTP server and runs closers.
// If ctx expires first, remaining closers are skipped and the context error
// is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers), "pending_voices", a.timeline.Pending())

		if err := a.controller.Close(); err != nil {
			slog.Warn("live session close error", "err", err)
		}
		if err := a.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// unavailable is the content provider used when none is configured.
type unavailable struct{}

func (unavailable) Insights(context.Context, any) (*content.Insights, error) {
	return nil, ErrNoContentProvider
}

func (unavailable) StreamChat(context.Context, []content.Message, string) (<-chan content.Chunk, error) {
	return nil, ErrNoContentProvider
}

func (unavailable) GenerateImage(context.Context, string) (string, error) {
	return "", ErrNoContentProvider
}
