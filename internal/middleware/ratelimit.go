package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is a fixed window limit: at most RequestsPerWindow
// requests per key in every WindowDuration.
type RateLimitConfig struct {
	// Name labels the limiter in metrics. Empty reports as "default".
	Name              string
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate rejects non-positive limits and windows.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("rate limit %q: requests per window must be positive, got %d", c.Name, c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("rate limit %q: window must be positive, got %s", c.Name, c.WindowDuration)
	}
	return nil
}

// DefaultGlobalLimit bounds every request from one client.
func DefaultGlobalLimit() RateLimitConfig {
	return RateLimitConfig{Name: "global", RequestsPerWindow: 100, WindowDuration: time.Minute}
}

// DefaultAdminLimit bounds scene and bug writes.
func DefaultAdminLimit() RateLimitConfig {
	return RateLimitConfig{Name: "admin", RequestsPerWindow: 30, WindowDuration: time.Minute}
}

// ClickLimit bounds click submissions per minute.
func ClickLimit(perMinute int) RateLimitConfig {
	return RateLimitConfig{Name: "click", RequestsPerWindow: perMinute, WindowDuration: time.Minute}
}

// RateLimitStore keeps limiter state.
type RateLimitStore interface {
	// Allow counts a request for key. It reports whether the request fits,
	// how many remain in the window and, when blocked, the seconds until
	// the window resets.
	Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, remaining int, retryAfter int)
}

type window struct {
	hits    int
	resetAt time.Time
}

// InMemoryRateLimitStore is a process-local RateLimitStore. Expired windows
// stay in memory until Cleanup runs.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewInMemoryRateLimitStore returns an empty store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{windows: make(map[string]*window), now: time.Now}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, config RateLimitConfig) (bool, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(config.WindowDuration)}
		s.windows[key] = w
	}
	if w.hits >= config.RequestsPerWindow {
		return false, 0, secondsUntil(w.resetAt.Sub(now))
	}
	w.hits++
	return true, config.RequestsPerWindow - w.hits, 0
}

// Cleanup drops windows that have already reset.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (s *InMemoryRateLimitStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// secondsUntil rounds d up to whole seconds, never below one.
func secondsUntil(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs <= 0 {
		return 1
	}
	return secs
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys by client address. The first X-Forwarded-For hop wins,
// then X-Real-IP, then the connection's remote host.
func IPKeyFunc() KeyFunc {
	return clientIP
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// SubjectKeyFunc keys by the authenticated admin subject and falls back to
// the client address. Keys are prefixed with their kind.
func SubjectKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if sub := GetSubject(r.Context()); sub != "" {
			return "subject:" + sub
		}
		return "ip:" + clientIP(r)
	}
}

// keyType derives the metrics label from a limiter key.
func keyType(key string) string {
	if prefix, _, ok := strings.Cut(key, ":"); ok && prefix == "subject" {
		return prefix
	}
	return "ip"
}

// RateLimiter rejects requests over config with 429 and a rate_limited
// error body. metrics may be nil.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	name := config.Name
	if name == "" {
		name = "default"
	}
	limit := strconv.Itoa(config.RequestsPerWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			kt := keyType(key)
			metrics.IncRateLimitRequests(name, kt)

			allowed, remaining, retryAfter := store.Allow(r.Context(), key, config)
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			metrics.IncRateLimitBlocked(name, kt)
			UpdateResponseContext(w, SetErrorCode(r.Context(), "rate_limited"))

			reset := time.Now().Add(time.Duration(retryAfter) * time.Second).Unix()
			h.Set("Retry-After", strconv.Itoa(retryAfter))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
			h.Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"Too many requests, slow down"}}`))
		})
	}
}
