package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/bughunt/internal/game"
	"github.com/onnwee/bughunt/internal/middleware"
	"github.com/onnwee/bughunt/internal/stream"
)

// Keepalive timing for state subscribers.
const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// EventHandlers streams state snapshots over WebSocket.
type EventHandlers struct {
	game        *game.Game
	broadcaster *stream.StateBroadcaster
	upgrader    websocket.Upgrader
}

// NewEventHandlers creates event handlers. allowedOrigins restricts the
// browser origins that may subscribe; an empty list accepts any origin.
func NewEventHandlers(g *game.Game, b *stream.StateBroadcaster, allowedOrigins []string) *EventHandlers {
	return &EventHandlers{
		game:        g,
		broadcaster: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

// Subscribe handles GET /api/events. The current state is sent first and
// every later change follows as a state_changed event.
func (h *EventHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		slog.WarnContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	initial := game.Event{Type: game.EventStateChanged, Reason: "subscribe", State: h.game.State()}
	h.broadcaster.Subscribe(conn, &initial)

	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "websocket client subscribed to state events", "request_id", requestID)

	stopPing := make(chan struct{})
	defer func() {
		close(stopPing)
		h.broadcaster.Unsubscribe(conn)
		conn.Close()
		slog.InfoContext(ctx, "websocket client unsubscribed", "request_id", requestID)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(stream.DefaultWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	// Clients do not send messages; reading detects disconnection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly", "error", err)
			}
			return
		}
	}
}
