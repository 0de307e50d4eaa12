package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/aria/internal/app"
	"github.com/MrWong99/aria/internal/assistant"
	"github.com/MrWong99/aria/internal/config"
	"github.com/MrWong99/aria/pkg/audio"
	audiomock "github.com/MrWong99/aria/pkg/audio/mock"
	"github.com/MrWong99/aria/pkg/provider/content"
	contentmock "github.com/MrWong99/aria/pkg/provider/content/mock"
	livemock "github.com/MrWong99/aria/pkg/provider/live/mock"
)

// testConfig returns a config with defaults applied and one live provider.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			Live: config.ProviderEntry{Name: "gemini-live", Model: "live-model", Options: map[string]any{"voice": "Puck"}},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func postInsights(t *testing.T, h http.Handler) content.Insights {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/insights", bytes.NewBufferString(`{"cpu":12}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var in content.Insights
	if err := json.NewDecoder(rec.Body).Decode(&in); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return in
}

func TestNew_RequiresLiveProvider(t *testing.T) {
	t.Parallel()
	if _, err := app.New(context.Background(), testConfig(), &app.Providers{}); err == nil {
		t.Fatal("expected error without a live provider")
	}
}

func TestNew_NoContentProviderDegrades(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), &app.Providers{Live: &livemock.Provider{}})

	if got := postInsights(t, a.Handler()); got.Summary != assistant.DefaultSummary {
		t.Errorf("summary = %q, want default", got.Summary)
	}
}

func TestNew_PersonaFallbackTexts(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Persona.FallbackSummary = "Todo en calma"
	cfg.Persona.ChatApology = "Perdon, Papa"
	a := newApp(t, cfg, &app.Providers{Live: &livemock.Provider{}})

	if got := postInsights(t, a.Handler()); got.Summary != "Todo en calma" {
		t.Errorf("summary = %q, want configured fallback", got.Summary)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"hola"}`))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"Perdon, Papa"`) || strings.Contains(body, assistant.DefaultApology) {
		t.Errorf("chat body = %q, want the configured apology", body)
	}
}

func TestNew_ContentFailover(t *testing.T) {
	t.Parallel()
	primary := &contentmock.Provider{InsightsErr: errors.New("quota")}
	secondary := &contentmock.Provider{InsightsResult: &content.Insights{Summary: "Todo estable"}}
	a := newApp(t, testConfig(), &app.Providers{
		Live: &livemock.Provider{},
		Content: []app.NamedContent{
			{Name: "gemini", Provider: primary},
			{Name: "openai", Provider: secondary},
		},
	})

	if got := postInsights(t, a.Handler()); got.Summary != "Todo estable" {
		t.Errorf("summary = %q, want secondary result", got.Summary)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}
}

func TestNew_DisabledMicrophoneRefusesOpen(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), &app.Providers{Live: &livemock.Provider{}})

	if _, err := a.Controller().Open(context.Background()); !errors.Is(err, audio.ErrPermissionDenied) {
		t.Errorf("Open err = %v, want ErrPermissionDenied", err)
	}
}

func TestApplyConfig_PersonaAppliesToNextOpen(t *testing.T) {
	t.Parallel()
	prov := &livemock.Provider{}
	cfg := testConfig()
	a := newApp(t, cfg, &app.Providers{Live: prov, Microphone: &audiomock.Microphone{}})

	next := *cfg
	next.Persona.LiveInstruction = "Habla en verso."
	a.ApplyConfig(&next, config.Diff(cfg, &next))

	if _, err := a.Controller().Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(prov.ConnectCalls) != 1 {
		t.Fatalf("connect calls = %d, want 1", len(prov.ConnectCalls))
	}
	got := prov.ConnectCalls[0]
	if got.Instructions != "Habla en verso." {
		t.Errorf("instructions = %q", got.Instructions)
	}
	if got.Voice != "Puck" || got.Model != "live-model" {
		t.Errorf("session config = %+v", got)
	}
}

func TestApp_ShutdownRunsClosersOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	a := newApp(t, testConfig(), &app.Providers{Live: &livemock.Provider{}},
		app.WithCloser(func() error { calls++; return nil }),
		app.WithCloser(func() error { calls++; return errors.New("ignored") }),
	)

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if calls != 2 {
		t.Errorf("closer calls = %d, want 2", calls)
	}
}

func TestApp_ShutdownDeadline(t *testing.T) {
	t.Parallel()
	called := false
	a := newApp(t, testConfig(), &app.Providers{Live: &livemock.Provider{}},
		app.WithCloser(func() error { called = true; return nil }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown err = %v, want context.Canceled", err)
	}
	if called {
		t.Error("closer ran after the deadline")
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	a := newApp(t, testConfig(), &app.Providers{Live: &livemock.Provider{}}, app.WithListener(lis))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	url := "http://" + lis.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
