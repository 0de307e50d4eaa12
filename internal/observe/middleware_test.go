package observe

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup creates both metrics and tracing infrastructure for middleware tests.
func testSetup(t *testing.T) (*Metrics, func() metricdata.ResourceMetrics, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)
	exp := newTestTracerProvider(t)
	return m, func() metricdata.ResourceMetrics { return collect(t, reader) }, exp
}

func TestMiddleware_SetsCorrelationID(t *testing.T) {
	m, _, _ := testSetup(t)

	var captured string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/live", nil))

	if len(captured) != 32 {
		t.Fatalf("correlation ID = %q, want 32 hex chars", captured)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != captured {
		t.Errorf("X-Correlation-ID = %q, want %q", got, captured)
	}
}

func TestMiddleware_PropagatesW3CTraceContext(t *testing.T) {
	m, _, _ := testSetup(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var captured string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/live", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured != traceID {
		t.Errorf("correlation ID = %q, want %q", captured, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
}

func TestMiddleware_SpanRecordsStatus(t *testing.T) {
	m, _, exp := testSetup(t)

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/images", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("response status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	if spans[0].Name != "HTTP POST /api/images" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == http.StatusBadGateway {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code attribute")
	}
}

func TestMiddleware_LabelsDurationByRoutePattern(t *testing.T) {
	m, collectAll, _ := testSetup(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {})
	handler := Middleware(m)(mux)

	for _, id := range []string{"a", "b", "c"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items/"+id, nil))
	}

	met := findMetric(collectAll(), "aria.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1 (one route)", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 3 {
		t.Errorf("sample count = %d, want 3", dp.Count)
	}
	var path string
	for _, kv := range dp.Attributes.ToSlice() {
		if string(kv.Key) == "path" {
			path = kv.Value.AsString()
		}
	}
	if path != "GET /api/items/{id}" {
		t.Errorf("path attribute = %q, want route pattern", path)
	}
}

func TestMiddleware_PreservesFlusher(t *testing.T) {
	m, _, _ := testSetup(t)

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("Flush through middleware: %v", err)
		}
		_, _ = w.Write([]byte("event: done\n\n"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	if !rec.Flushed {
		t.Error("recorder was not flushed")
	}
	if !strings.Contains(rec.Body.String(), "event: done") {
		t.Errorf("body = %q", rec.Body.String())
	}
}
