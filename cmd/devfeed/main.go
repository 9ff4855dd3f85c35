// devfeed is a local stand-in for the community live-feed service. It
// accepts websocket subscribers on /feed and replays whatever embed and
// banned lists are POSTed to /emit, so the wall can be exercised without
// the real feed.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"github.com/you/streamwall/internal/core"
)

type hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	// last frames replayed to new subscribers
	lastEmbeds []byte
	lastBanned []byte
}

func newHub() *hub {
	return &hub{clients: make(map[chan []byte]struct{})}
}

func (h *hub) subscribe() (chan []byte, [][]byte) {
	ch := make(chan []byte, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[ch] = struct{}{}
	var replay [][]byte
	if h.lastEmbeds != nil {
		replay = append(replay, h.lastEmbeds)
	}
	if h.lastBanned != nil {
		replay = append(replay, h.lastBanned)
	}
	return ch, replay
}

func (h *hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, ch)
}

func (h *hub) broadcast(frameType string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch frameType {
	case "embeds":
		h.lastEmbeds = data
	case "banned":
		h.lastBanned = data
	}
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

func main() {
	var addr string
	flag.StringVar(&addr, "addr", ":8844", "HTTP listen address")
	flag.Parse()

	h := newHub()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /feed", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ch, replay := h.subscribe()
		defer h.unsubscribe(ch)

		ctx := r.Context()
		for _, frame := range replay {
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-ch:
				if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
					return
				}
			}
		}
	})

	mux.HandleFunc("POST /emit", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req struct {
			Embeds []core.LiveEmbed   `json:"embeds"`
			Banned []core.BannedEmbed `json:"banned"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		if req.Embeds != nil {
			frame, err := json.Marshal(map[string]any{"type": "embeds", "embeds": req.Embeds})
			if err != nil {
				http.Error(w, "encode failed", http.StatusInternalServerError)
				return
			}
			h.broadcast("embeds", frame)
		}
		if req.Banned != nil {
			frame, err := json.Marshal(map[string]any{"type": "banned", "banned": req.Banned})
			if err != nil {
				http.Error(w, "encode failed", http.StatusInternalServerError)
				return
			}
			h.broadcast("banned", frame)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "embeds": len(req.Embeds), "banned": len(req.Banned)})
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	log.Printf("devfeed listening on %s", addr)

	server := &http.Server{Addr: addr, Handler: mux}
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
