package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/aria/internal/observe"
	"github.com/MrWong99/aria/pkg/provider/content"
	"github.com/MrWong99/aria/pkg/provider/content/mock"
)

var errRemote = errors.New("remote failure")

type fixture struct {
	reader *sdkmetric.ManualReader
	svc    *Service
}

func newFixture(t *testing.T, p content.Provider) *fixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return &fixture{reader: reader, svc: New(p, WithMetrics(m), WithProviderName("mock"))}
}

// counter sums every data point of the named int64 counter whose attribute
// key has the given value. An empty key matches all points.
func (f *fixture) counter(t *testing.T, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if key != "" {
					v, ok := dp.Attributes.Value(attribute.Key(key))
					if !ok || v.AsString() != value {
						continue
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func drain(ch <-chan string) []string {
	var out []string
	for s := range ch {
		out = append(out, s)
	}
	return out
}

func TestInsights(t *testing.T) {
	tests := []struct {
		name        string
		provider    *mock.Provider
		wantSummary string
		wantDegrade int64
	}{
		{
			name: "success",
			provider: &mock.Provider{InsightsResult: &content.Insights{
				Summary:    "Estable",
				KeyMetrics: []content.Metric{{Label: "CPU", Value: "3%", Trend: "sideways"}},
			}},
			wantSummary: "Estable",
		},
		{name: "provider error", provider: &mock.Provider{InsightsErr: errRemote}, wantSummary: DefaultSummary, wantDegrade: 1},
		{name: "invalid json", provider: &mock.Provider{InsightsErr: content.ErrInvalidInsights}, wantSummary: DefaultSummary, wantDegrade: 1},
		{name: "empty summary", provider: &mock.Provider{InsightsResult: &content.Insights{}}, wantSummary: DefaultSummary, wantDegrade: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.provider)
			got := f.svc.Insights(context.Background(), map[string]any{"cpu": 3})
			if got.Summary != tc.wantSummary {
				t.Errorf("Summary = %q, want %q", got.Summary, tc.wantSummary)
			}
			if got.KeyMetrics == nil {
				t.Error("KeyMetrics is nil, want non-nil slice")
			}
			for _, m := range got.KeyMetrics {
				if m.Trend != content.TrendNeutral {
					t.Errorf("trend %q not normalised", m.Trend)
				}
			}
			if n := f.counter(t, "aria.content.degradations", "op", "insights"); n != tc.wantDegrade {
				t.Errorf("degradations = %d, want %d", n, tc.wantDegrade)
			}
			if n := f.counter(t, "aria.content.requests", "op", "insights"); n != 1 {
				t.Errorf("requests = %d, want 1", n)
			}
		})
	}
}

func TestChat_Streams(t *testing.T) {
	p := &mock.Provider{ChatChunks: []content.Chunk{{Text: "Hola"}, {Text: ""}, {Text: ", Papá"}}}
	f := newFixture(t, p)

	history := []content.Message{{Role: content.RoleAssistant, Content: "¿Sí?"}}
	got := drain(f.svc.Chat(context.Background(), history, "hola"))
	if strings.Join(got, "|") != "Hola|, Papá" {
		t.Errorf("fragments = %q", got)
	}
	if call := p.ChatCalls[0]; call.Message != "hola" || len(call.History) != 1 {
		t.Errorf("provider call = %+v", call)
	}
	if n := f.counter(t, "aria.content.requests", "status", "ok"); n != 1 {
		t.Errorf("ok requests = %d, want 1", n)
	}
}

func TestChat_Degrades(t *testing.T) {
	tests := []struct {
		name     string
		provider *mock.Provider
		want     []string
	}{
		{name: "start error", provider: &mock.Provider{ChatErr: errRemote}, want: []string{DefaultApology}},
		{
			name:     "mid-stream error",
			provider: &mock.Provider{ChatChunks: []content.Chunk{{Text: "Ho"}, {Err: errRemote}, {Text: "lost"}}},
			want:     []string{"Ho", DefaultApology},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.provider)
			got := drain(f.svc.Chat(context.Background(), nil, "hola"))
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Errorf("fragments = %q, want %q", got, tc.want)
			}
			if n := f.counter(t, "aria.content.degradations", "op", "chat"); n != 1 {
				t.Errorf("degradations = %d, want 1", n)
			}
		})
	}
}

func TestChat_CustomApology(t *testing.T) {
	f := newFixture(t, &mock.Provider{ChatErr: errRemote})
	svc := New(&mock.Provider{ChatErr: errRemote}, WithApology("lo siento"), WithMetrics(f.svc.metrics))
	if got := drain(svc.Chat(context.Background(), nil, "x")); len(got) != 1 || got[0] != "lo siento" {
		t.Errorf("fragments = %q", got)
	}
}

func TestGenerateImage(t *testing.T) {
	p := &mock.Provider{ImageURL: "data:image/png;base64,AQID"}
	f := newFixture(t, p)

	url, err := f.svc.GenerateImage(context.Background(), "  cyber koi ")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if url != p.ImageURL {
		t.Errorf("url = %q", url)
	}
	if p.ImageCalls[0] != "cyber koi" {
		t.Errorf("prompt = %q, want trimmed", p.ImageCalls[0])
	}
}

func TestGenerateImage_ErrorPropagates(t *testing.T) {
	f := newFixture(t, &mock.Provider{ImageErr: content.ErrEmptyResponse})
	if _, err := f.svc.GenerateImage(context.Background(), "koi"); !errors.Is(err, content.ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
	if n := f.counter(t, "aria.content.degradations", "", ""); n != 0 {
		t.Errorf("degradations = %d, want 0", n)
	}
	if n := f.counter(t, "aria.content.requests", "status", "error"); n != 1 {
		t.Errorf("error requests = %d, want 1", n)
	}
}

func TestHealthy(t *testing.T) {
	if !New(&mock.Provider{}).Healthy() {
		t.Error("provider without health notion reported unhealthy")
	}
	if New(unhealthy{&mock.Provider{}}).Healthy() {
		t.Error("unhealthy provider reported healthy")
	}
}

type unhealthy struct{ *mock.Provider }

func (unhealthy) Healthy() bool { return false }
