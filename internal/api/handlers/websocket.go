package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/onnwee/nbody-barneshut/backend/internal/logger"
	"github.com/onnwee/nbody-barneshut/backend/internal/middleware"
	"github.com/onnwee/nbody-barneshut/backend/internal/runs"
	"github.com/onnwee/nbody-barneshut/backend/internal/store"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, allowedOrigins)
		},
	}
}

// originAllowed admits clients without an Origin header, same-host pages and
// the CORS origins.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return middleware.OriginAllowed(origin, allowed)
}

// StreamRun streams frames of a live run: binary msgpack frames followed by
// a JSON done message. A run that already finished gets only the done
// message.
// GET /api/runs/{id}/ws
func (h *RunHandler) StreamRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	log := logger.WithRunID(logger.ContextWithRunID(r.Context(), id))

	var finished *store.Run
	sub, err := h.svc.Subscribe(id)
	if err != nil {
		run, ok := h.lookup(w, r, id)
		if !ok {
			return
		}
		finished = run
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		log.Warn("Failed to upgrade to WebSocket", "error", err)
		if sub != nil {
			sub.Close()
		}
		return
	}

	if finished != nil {
		data, err := json.Marshal(runs.DoneMessage{Type: "done", Run: finished})
		if err != nil {
			log.Error("Failed to encode done message", "error", err)
			data = []byte(`{"type":"done"}`)
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err == nil {
			closeNormal(conn)
		}
		conn.Close()
		return
	}

	log.Debug("WebSocket client subscribed")
	gone := make(chan struct{})
	go readPump(conn, gone)
	writePump(conn, sub, gone)
}

// readPump drains control frames until the peer goes away.
func readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket unexpected close", "error", err)
			}
			return
		}
	}
}

// writePump forwards subscription messages to the connection until the run
// finishes or the peer disconnects.
func writePump(conn *websocket.Conn, sub *runs.Subscription, gone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				closeNormal(conn)
				return
			}
			kind := websocket.TextMessage
			if msg.Binary {
				kind = websocket.BinaryMessage
			}
			if err := conn.WriteMessage(kind, msg.Data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-gone:
			return
		}
	}
}

func closeNormal(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
		time.Now().Add(writeWait))
}
