package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetrics(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		status     int
		response   string
		wantLabels []string
	}{
		{name: "read", method: http.MethodGet, path: "/api/state", status: http.StatusOK, response: `{"scenes":[]}`, wantLabels: []string{"GET", "/api/state", "200"}},
		{name: "write with body", method: http.MethodPost, path: "/api/scenes", body: `{"name":"Garage"}`, status: http.StatusCreated, response: `{"id":"1"}`, wantLabels: []string{"POST", "/api/scenes", "201"}},
		{name: "id normalized", method: http.MethodDelete, path: "/api/bugs/9", status: http.StatusNoContent, wantLabels: []string{"DELETE", "/api/bugs/{id}", "204"}},
		{name: "not found", method: http.MethodGet, path: "/nope", status: http.StatusNotFound, wantLabels: []string{"GET", "/nope", "404"}},
		{name: "health skipped", method: http.MethodGet, path: "/health", status: http.StatusOK},
		{name: "metrics skipped", method: http.MethodGet, path: "/metrics", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics()
			h := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.response))
			}))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))

			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			if tt.wantLabels == nil {
				if n := testutil.CollectAndCount(m.requests); n != 0 {
					t.Errorf("expected no series, got %d", n)
				}
				return
			}
			if got := testutil.ToFloat64(m.requests.WithLabelValues(tt.wantLabels...)); got != 1 {
				t.Errorf("requests%v = %v, want 1", tt.wantLabels, got)
			}
			if n := testutil.CollectAndCount(m.duration); n != 1 {
				t.Errorf("duration series = %d, want 1", n)
			}
		})
	}
}

func TestHTTPMetrics_Sizes(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	h := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 300)))
		_, _ = w.Write([]byte(strings.Repeat("y", 200)))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/play/click", strings.NewReader(`{"x":1,"y":2}`)))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	sums := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if hist := metric.GetHistogram(); hist != nil {
				sums[mf.GetName()] = hist.GetSampleSum()
			}
		}
	}
	if got := sums[MetricHTTPResponseSizeBytes]; got != 500 {
		t.Errorf("response size sum = %v, want 500", got)
	}
	if got := sums[MetricHTTPRequestSizeBytes]; got != 13 {
		t.Errorf("request size sum = %v, want 13", got)
	}
}

func TestHTTPMetrics_UsesMuxPattern(t *testing.T) {
	m := NewMetrics()
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/scenes/{sceneID}", func(w http.ResponseWriter, r *http.Request) {})
	h := HTTPMetrics(m)(mux)

	for _, id := range []string{"a", "b", "c"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/api/scenes/"+id, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("PATCH", "/api/scenes/{sceneID}", "200")); got != 3 {
		t.Errorf("requests = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(m.requests); n != 1 {
		t.Errorf("series = %d, want 1", n)
	}
}
