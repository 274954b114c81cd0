package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeClock lets tests step through windows without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func storeWithClock() (*InMemoryRateLimitStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewInMemoryRateLimitStore()
	store.now = clock.Now
	return store, clock
}

func TestInMemoryRateLimitStore_Allow(t *testing.T) {
	limit := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: 10 * time.Second}

	type step struct {
		advance       time.Duration
		key           string
		wantAllowed   bool
		wantRemaining int
		wantRetry     int
	}
	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "counts down then blocks",
			steps: []step{
				{key: "a", wantAllowed: true, wantRemaining: 2},
				{key: "a", wantAllowed: true, wantRemaining: 1},
				{key: "a", wantAllowed: true, wantRemaining: 0},
				{key: "a", wantAllowed: false, wantRetry: 10},
			},
		},
		{
			name: "retry after rounds up",
			steps: []step{
				{key: "a", wantAllowed: true, wantRemaining: 2},
				{key: "a", wantAllowed: true, wantRemaining: 1},
				{key: "a", wantAllowed: true, wantRemaining: 0},
				{advance: 2500 * time.Millisecond, key: "a", wantAllowed: false, wantRetry: 8},
			},
		},
		{
			name: "keys are independent",
			steps: []step{
				{key: "a", wantAllowed: true, wantRemaining: 2},
				{key: "a", wantAllowed: true, wantRemaining: 1},
				{key: "a", wantAllowed: true, wantRemaining: 0},
				{key: "b", wantAllowed: true, wantRemaining: 2},
			},
		},
		{
			name: "window resets",
			steps: []step{
				{key: "a", wantAllowed: true, wantRemaining: 2},
				{key: "a", wantAllowed: true, wantRemaining: 1},
				{key: "a", wantAllowed: true, wantRemaining: 0},
				{advance: 10 * time.Second, key: "a", wantAllowed: true, wantRemaining: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, clock := storeWithClock()
			for i, s := range tt.steps {
				clock.Advance(s.advance)
				allowed, remaining, retry := store.Allow(context.Background(), s.key, limit)
				if allowed != s.wantAllowed || remaining != s.wantRemaining || retry != s.wantRetry {
					t.Errorf("step %d: Allow(%q) = (%v, %d, %d), want (%v, %d, %d)",
						i, s.key, allowed, remaining, retry, s.wantAllowed, s.wantRemaining, s.wantRetry)
				}
			}
		})
	}
}

func TestInMemoryRateLimitStore_Concurrent(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	limit := RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Minute}

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 120; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, _ := store.Allow(context.Background(), "shared", limit); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 50 {
		t.Errorf("allowed = %d, want 50", got)
	}
}

func TestInMemoryRateLimitStore_Cleanup(t *testing.T) {
	store, clock := storeWithClock()
	short := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second}
	long := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour}

	store.Allow(context.Background(), "short", short)
	store.Allow(context.Background(), "long", long)
	clock.Advance(2 * time.Second)
	store.Cleanup()

	if _, ok := store.windows["short"]; ok {
		t.Error("expired window was not removed")
	}
	if _, ok := store.windows["long"]; !ok {
		t.Error("live window was removed")
	}
}

func TestInMemoryRateLimitStore_Run(t *testing.T) {
	store, clock := storeWithClock()
	store.Allow(context.Background(), "k", RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second})
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		store.mu.Lock()
		n := len(store.windows)
		store.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Run did not sweep the expired window")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
}

func TestKeyFuncs(t *testing.T) {
	tests := []struct {
		name        string
		remoteAddr  string
		headers     map[string]string
		subject     string
		wantIP      string
		wantSubject string
	}{
		{name: "remote addr", remoteAddr: "192.168.1.1:12345", wantIP: "192.168.1.1", wantSubject: "ip:192.168.1.1"},
		{name: "remote addr without port", remoteAddr: "192.168.1.1", wantIP: "192.168.1.1", wantSubject: "ip:192.168.1.1"},
		{name: "ipv6", remoteAddr: "[2001:db8::1]:8080", wantIP: "2001:db8::1", wantSubject: "ip:2001:db8::1"},
		{
			name:        "first forwarded hop",
			remoteAddr:  "10.0.0.1:1",
			headers:     map[string]string{"X-Forwarded-For": " 203.0.113.50 , 198.51.100.1", "X-Real-IP": "198.51.100.9"},
			wantIP:      "203.0.113.50",
			wantSubject: "ip:203.0.113.50",
		},
		{
			name:        "real ip",
			remoteAddr:  "10.0.0.1:1",
			headers:     map[string]string{"X-Real-IP": " 203.0.113.7 "},
			wantIP:      "203.0.113.7",
			wantSubject: "ip:203.0.113.7",
		},
		{name: "subject wins", remoteAddr: "10.0.0.1:1", subject: "admin", wantIP: "10.0.0.1", wantSubject: "subject:admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.subject != "" {
				req = req.WithContext(SetSubject(req.Context(), tt.subject))
			}

			if got := IPKeyFunc()(req); got != tt.wantIP {
				t.Errorf("IPKeyFunc() = %q, want %q", got, tt.wantIP)
			}
			if got := SubjectKeyFunc()(req); got != tt.wantSubject {
				t.Errorf("SubjectKeyFunc() = %q, want %q", got, tt.wantSubject)
			}
			if got, want := keyType(SubjectKeyFunc()(req)), keyTypeFor(tt.subject); got != want {
				t.Errorf("keyType() = %q, want %q", got, want)
			}
		})
	}
}

func keyTypeFor(subject string) string {
	if subject != "" {
		return "subject"
	}
	return "ip"
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{name: "global default", config: DefaultGlobalLimit()},
		{name: "admin default", config: DefaultAdminLimit()},
		{name: "click", config: ClickLimit(60)},
		{name: "zero requests", config: ClickLimit(0), wantErr: true},
		{name: "negative requests", config: RateLimitConfig{RequestsPerWindow: -1, WindowDuration: time.Minute}, wantErr: true},
		{name: "zero window", config: RateLimitConfig{RequestsPerWindow: 1}, wantErr: true},
		{name: "negative window", config: RateLimitConfig{RequestsPerWindow: 1, WindowDuration: -time.Second}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultLimits(t *testing.T) {
	tests := []struct {
		config   RateLimitConfig
		name     string
		requests int
	}{
		{DefaultGlobalLimit(), "global", 100},
		{DefaultAdminLimit(), "admin", 30},
		{ClickLimit(45), "click", 45},
	}
	for _, tt := range tests {
		if tt.config.Name != tt.name || tt.config.RequestsPerWindow != tt.requests || tt.config.WindowDuration != time.Minute {
			t.Errorf("got %+v, want %s limit of %d per minute", tt.config, tt.name, tt.requests)
		}
	}

	g := DefaultGlobalLimit()
	g.RequestsPerWindow = 1
	if DefaultGlobalLimit().RequestsPerWindow != 100 {
		t.Error("DefaultGlobalLimit returned shared state")
	}
}

func limitedHandler(store RateLimitStore, config RateLimitConfig, m *Metrics) http.Handler {
	return RateLimiter(store, config, SubjectKeyFunc(), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func click(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/play/click", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_AllowsThenBlocks(t *testing.T) {
	h := limitedHandler(NewInMemoryRateLimitStore(), ClickLimit(2), nil)

	first := click(h, "192.168.1.9:5000")
	if first.Code != http.StatusNoContent {
		t.Fatalf("first status = %d, want 204", first.Code)
	}
	if got := first.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", got)
	}
	if got := first.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("X-RateLimit-Remaining = %q, want 1", got)
	}

	click(h, "192.168.1.9:5000")
	blocked := click(h, "192.168.1.9:5000")
	if blocked.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", blocked.Code)
	}

	retry, err := strconv.Atoi(blocked.Header().Get("Retry-After"))
	if err != nil || retry < 1 || retry > 60 {
		t.Errorf("Retry-After = %q, want 1..60", blocked.Header().Get("Retry-After"))
	}
	reset, err := strconv.ParseInt(blocked.Header().Get("X-RateLimit-Reset"), 10, 64)
	if now := time.Now().Unix(); err != nil || reset < now || reset > now+61 {
		t.Errorf("X-RateLimit-Reset = %q, want a unix time within the window", blocked.Header().Get("X-RateLimit-Reset"))
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(blocked.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.Error.Code != "rate_limited" {
		t.Errorf("error code = %q, want rate_limited", body.Error.Code)
	}

	if other := click(h, "192.168.1.10:5000"); other.Code != http.StatusNoContent {
		t.Errorf("another client got %d, want 204", other.Code)
	}
}

func TestRateLimiter_RecordsMetrics(t *testing.T) {
	m := NewMetrics()
	h := limitedHandler(NewInMemoryRateLimitStore(), ClickLimit(1), m)
	for i := 0; i < 3; i++ {
		click(h, "10.1.1.1:1")
	}

	if got := testutil.ToFloat64(m.limited.WithLabelValues("click", "ip")); got != 3 {
		t.Errorf("rate limit requests = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.blocked.WithLabelValues("click", "ip")); got != 2 {
		t.Errorf("rate limit blocked = %v, want 2", got)
	}
}

func TestRateLimiter_UnnamedLimit(t *testing.T) {
	m := NewMetrics()
	h := limitedHandler(NewInMemoryRateLimitStore(), RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, m)
	click(h, "10.1.1.1:1")

	if got := testutil.ToFloat64(m.limited.WithLabelValues("default", "ip")); got != 1 {
		t.Errorf("default limiter requests = %v, want 1", got)
	}
}
