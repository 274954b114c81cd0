package middleware

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
)

// recorder wraps a ResponseWriter to observe the status and body size.
// Logging and HTTPMetrics each install one.
type recorder struct {
	http.ResponseWriter
	status  int
	written int64
	sent    bool
	// ctx is the latest request context handed back by a handler through
	// UpdateResponseContext.
	ctx context.Context
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader keeps the first status, as net/http does.
func (rec *recorder) WriteHeader(code int) {
	if rec.sent {
		return
	}
	rec.status, rec.sent = code, true
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	rec.sent = true
	n, err := rec.ResponseWriter.Write(b)
	rec.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *recorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

func (rec *recorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack passes websocket upgrades through. A hijacked connection is
// recorded as 101.
func (rec *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not support hijacking", rec.ResponseWriter)
	}
	conn, buf, err := h.Hijack()
	if err == nil {
		rec.status, rec.sent = http.StatusSwitchingProtocols, true
	}
	return conn, buf, err
}

// UpdateResponseContext hands ctx to every recorder wrapping w, so values
// a handler adds after routing (error code, subject) reach the request
// log. It is a no-op for writers no middleware wrapped.
func UpdateResponseContext(w http.ResponseWriter, ctx context.Context) {
	for w != nil {
		if rec, ok := w.(*recorder); ok {
			rec.ctx = ctx
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return
		}
		w = u.Unwrap()
	}
}
