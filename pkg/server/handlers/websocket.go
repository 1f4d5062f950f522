package handlers

import (
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mnohosten/diodb/pkg/diodb"
)

// upgrader accepts WebSocket connections from any origin; CORS for the
// regular HTTP routes is handled by the router's own middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WatchEvent is the wire representation of a diodb.Event sent to a
// watch connection.
type WatchEvent struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// HandleWatch upgrades the connection and streams every Put/Erase
// event until the client disconnects.
func (h *Handlers) HandleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("watch: failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := h.db.Subscribe(64)
	defer cancel()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	// A background reader drains and discards control frames so the
	// connection notices a client-initiated close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			wire := WatchEvent{Type: string(ev.Type), Key: string(ev.Key)}
			if ev.Type == diodb.EventPut {
				wire.Value = base64.StdEncoding.EncodeToString(ev.Value)
			}
			if err := conn.WriteJSON(wire); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteJSON(map[string]string{"type": "heartbeat"}); err != nil {
				return
			}
		}
	}
}

// SetupWatchRoute mounts the WebSocket watch endpoint on r.
func SetupWatchRoute(r chi.Router, h *Handlers) {
	r.Get("/watch", h.HandleWatch)
	r.Post("/watch", func(w http.ResponseWriter, req *http.Request) {
		writeSuccess(w, map[string]string{
			"message":  "use the WebSocket endpoint to stream change events",
			"endpoint": fmt.Sprintf("ws://%s/watch", req.Host),
		})
	})
}
