package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticRoutes are recorded under their literal path.
var staticRoutes = map[string]bool{
	"/":                        true,
	"/api/state":               true,
	"/api/scenes":              true,
	"/api/bugs":                true,
	"/api/events":              true,
	"/api/play/scene":          true,
	"/api/play/bug":            true,
	"/api/play/click":          true,
	"/api/play/advance":        true,
	"/api/play/intro/dismiss":  true,
	"/api/admin/mode":          true,
	"/api/admin/region":        true,
	"/api/admin/region/start":  true,
	"/api/admin/region/points": true,
	"/api/admin/region/undo":   true,
	"/api/admin/region/cancel": true,
	"/api/admin/region/commit": true,
	"/api/admin/images":        true,
	"/api/admin/uploads/sign":  true,
	"/health":                  true,
	"/ready":                   true,
	"/metrics":                 true,
}

// normalizePath maps IDs in known routes to placeholders, e.g. /api/bugs/123
// to /api/bugs/{id}. Unknown paths are returned unchanged.
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}

	parts := strings.Split(path, "/")

	switch {
	// /api/scenes/{id} and /api/scenes/{id}/bugs
	case strings.HasPrefix(path, "/api/scenes/"):
		if len(parts) == 4 && parts[3] != "" {
			return "/api/scenes/{id}"
		}
		if len(parts) == 5 && parts[3] != "" && parts[4] == "bugs" {
			return "/api/scenes/{id}/bugs"
		}

	// /api/bugs/{id}
	case strings.HasPrefix(path, "/api/bugs/"):
		if len(parts) == 4 && parts[3] != "" {
			return "/api/bugs/{id}"
		}

	// /api/admin/region/edit/{id}
	case strings.HasPrefix(path, "/api/admin/region/edit/"):
		if len(parts) == 6 && parts[5] != "" {
			return "/api/admin/region/edit/{id}"
		}
	}

	return path
}

// routeLabel prefers the pattern the ServeMux matched, which it records on
// the request, and falls back to normalizePath for unrouted requests.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		pattern := r.Pattern
		if _, rest, ok := strings.Cut(pattern, " "); ok {
			pattern = rest
		}
		return pattern
	}
	return normalizePath(r.URL.Path)
}

// unmeteredPaths are probes and scrapes, not player traffic.
var unmeteredPaths = map[string]bool{"/health": true, "/ready": true, "/metrics": true}

// HTTPMetrics observes count, latency and body sizes per route and status.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if unmeteredPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := newRecorder(w)
			next.ServeHTTP(rec, r)

			metrics.ObserveHTTPRequest(r.Method, routeLabel(r), strconv.Itoa(rec.status),
				time.Since(start).Seconds(), max(r.ContentLength, 0), rec.written)
		})
	}
}
