package content

import (
	"errors"
	"strings"
	"testing"
)

func TestParseInsights(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		summary   string
		wantTrend []Trend
	}{
		{
			name:      "plain",
			raw:       `{"summary":"ok","keyMetrics":[{"label":"cpu","value":"12%","trend":"up"}]}`,
			summary:   "ok",
			wantTrend: []Trend{TrendUp},
		},
		{
			name:      "fenced",
			raw:       "```json\n{\"summary\":\"ok\",\"keyMetrics\":[]}\n```",
			summary:   "ok",
			wantTrend: []Trend{},
		},
		{
			name:      "unknown trend normalised",
			raw:       `{"summary":"ok","keyMetrics":[{"label":"a","value":"1","trend":"sideways"},{"label":"b","value":"2","trend":"DOWN"}]}`,
			summary:   "ok",
			wantTrend: []Trend{TrendNeutral, TrendDown},
		},
		{
			name:      "missing metrics",
			raw:       `{"summary":"ok"}`,
			summary:   "ok",
			wantTrend: []Trend{},
		},
		{name: "empty object", raw: `{}`, wantErr: true},
		{name: "not json", raw: `Sistemas nominales`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseInsights(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidInsights) {
					t.Fatalf("err = %v, want ErrInvalidInsights", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInsights: %v", err)
			}
			if got.Summary != tc.summary {
				t.Errorf("Summary = %q, want %q", got.Summary, tc.summary)
			}
			if got.KeyMetrics == nil {
				t.Fatal("KeyMetrics is nil, want empty slice")
			}
			if len(got.KeyMetrics) != len(tc.wantTrend) {
				t.Fatalf("len(KeyMetrics) = %d, want %d", len(got.KeyMetrics), len(tc.wantTrend))
			}
			for i, want := range tc.wantTrend {
				if got.KeyMetrics[i].Trend != want {
					t.Errorf("metric %d trend = %q, want %q", i, got.KeyMetrics[i].Trend, want)
				}
			}
		})
	}
}

func TestDataURL(t *testing.T) {
	got := DataURL("", []byte{0x89, 'P', 'N', 'G'})
	if got != "data:image/png;base64,iVBORw==" {
		t.Errorf("DataURL = %q", got)
	}
	if got := DataURL("image/jpeg", nil); !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Errorf("DataURL(jpeg) = %q", got)
	}
}

func TestPersona(t *testing.T) {
	p := Persona{ChatInstruction: "custom"}.WithDefaults()
	if p.ChatInstruction != "custom" {
		t.Errorf("ChatInstruction overwritten: %q", p.ChatInstruction)
	}
	if p.LiveInstruction != DefaultPersona().LiveInstruction {
		t.Error("LiveInstruction not defaulted")
	}

	req, err := p.InsightsRequest(map[string]int{"nodes": 3})
	if err != nil {
		t.Fatalf("InsightsRequest: %v", err)
	}
	if !strings.Contains(req, `{"nodes":3}`) {
		t.Errorf("insights prompt does not embed data: %q", req)
	}

	if _, err := p.InsightsRequest(make(chan int)); err == nil {
		t.Error("InsightsRequest with unencodable data: expected error")
	}

	if img := p.ImageRequest("a fox"); !strings.Contains(img, "style: a fox.") {
		t.Errorf("image prompt = %q", img)
	}
}
