// Package httpapi serves the wall's control surface: state snapshots,
// selection toggles, manual pins, bookmark management and an SSE stream of
// state changes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/you/streamwall/internal/core"
	"github.com/you/streamwall/internal/grid"
	"github.com/you/streamwall/internal/wall"
)

// Wall is the orchestrator surface the API needs.
type Wall interface {
	Snapshot() wall.Snapshot
	ToggleVideo(key string) bool
	ToggleChat(key string) bool
	ToggleDockItem(keys []string) string
	AddManualFromURL(ctx context.Context, raw string) (string, error)
	RemoveManual(key string) bool
	Bookmarks() []core.Bookmark
	SetBookmarks(ctx context.Context, bookmarks []core.Bookmark)
	PollNow(platform string)
	SetYouTubeMultiplier(ctx context.Context, multiplier float64)
	SetPlatformOrder(order []string)
}

// Options configures the server.
type Options struct {
	Addr        string
	Build       BuildInfo
	CORSOrigins []string
	// RateRPS/RateBurst enable per-IP rate limiting when both positive.
	RateRPS   int
	RateBurst int
}

// Server is the HTTP control surface.
type Server struct {
	httpServer *http.Server
	wall       Wall
	opts       Options
	metrics    *Metrics
	limiter    *ipRateLimiter
	cors       *corsPolicy

	mu      sync.Mutex
	clients map[chan []byte]struct{}
	closed  bool
}

// New creates the server around a wall.
func New(w Wall, opts Options) *Server {
	srv := &Server{
		wall:    w,
		opts:    opts,
		metrics: newMetrics(),
		limiter: newIPRateLimiter(opts.RateRPS, opts.RateBurst),
		cors:    newCORSPolicy(opts.CORSOrigins),
		clients: make(map[chan []byte]struct{}),
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", srv.route("healthz", srv.handleHealthz))
	mux.Handle("/info", srv.route("info", srv.handleInfo))
	mux.Handle("/state", srv.route("state", srv.handleState))
	mux.Handle("/embeds", srv.route("embeds", srv.handleEmbeds))
	mux.Handle("/dock", srv.route("dock", srv.handleDock))
	mux.Handle("/dock/toggle", srv.route("dock_toggle", srv.handleDockToggle))
	mux.Handle("/grid", srv.route("grid", srv.handleGrid))
	mux.Handle("/toggle/video", srv.route("toggle_video", srv.handleToggleVideo))
	mux.Handle("/toggle/chat", srv.route("toggle_chat", srv.handleToggleChat))
	mux.Handle("/manual", srv.route("manual", srv.handleManual))
	mux.Handle("/bookmarks", srv.route("bookmarks", srv.handleBookmarks))
	mux.Handle("/prefs", srv.route("prefs", srv.handlePrefs))
	mux.Handle("/admin/poll", srv.route("admin_poll", srv.handleAdminPoll))
	mux.Handle("/stream", srv.route("stream", srv.handleStream))
	mux.Handle("/metrics", srv.metrics.Handler())

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

// Metrics exposes the collector bundle so the daemon can wire poller and
// feed counters into it.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler returns the mux, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) route(name string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if handled, status := s.cors.handlePreflight(w, r); handled {
			s.metrics.ObserveRequest(name, r.Method, status, time.Since(start))
			return
		}
		if !s.cors.applyHeaders(w, r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			s.metrics.ObserveRequest(name, r.Method, http.StatusForbidden, time.Since(start))
			return
		}
		if !s.limiter.Allow(remoteIP(r)) {
			s.metrics.IncRateLimited()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			s.metrics.ObserveRequest(name, r.Method, http.StatusTooManyRequests, time.Since(start))
			return
		}

		rec := newResponseRecorder(w)
		handler(rec, r)
		s.metrics.ObserveRequest(name, r.Method, rec.Status(), time.Since(start))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.wall.Snapshot())
}

func (s *Server) handleEmbeds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	filters, err := ParseFilters(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, filters.Apply(s.wall.Snapshot().Embeds))
}

func (s *Server) handleDock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.wall.Snapshot().Dock)
}

func (s *Server) handleDockToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keys) == 0 {
		http.Error(w, "keys required", http.StatusBadRequest)
		return
	}
	turnedOn := s.wall.ToggleDockItem(req.Keys)
	writeJSON(w, map[string]any{"on": turnedOn != "", "key": turnedOn})
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	n := len(s.wall.Snapshot().Video)
	if raw := q.Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "n must be a non-negative integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	cols := grid.BestColumnCount(n,
		queryFloat(q.Get("width"), 0),
		queryFloat(q.Get("height"), 0),
		queryFloat(q.Get("gap"), 0),
		queryFloat(q.Get("header"), 0),
	)
	writeJSON(w, map[string]int{"columns": cols, "count": n})
}

func (s *Server) handleToggleVideo(w http.ResponseWriter, r *http.Request) {
	key, ok := s.toggleKey(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]bool{"on": s.wall.ToggleVideo(key)})
}

func (s *Server) handleToggleChat(w http.ResponseWriter, r *http.Request) {
	key, ok := s.toggleKey(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]bool{"on": s.wall.ToggleChat(key)})
}

func (s *Server) toggleKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		http.Error(w, "key required", http.StatusBadRequest)
		return "", false
	}
	return req.Key, true
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			http.Error(w, "url required", http.StatusBadRequest)
			return
		}
		key, err := s.wall.AddManualFromURL(r.Context(), req.URL)
		if errors.Is(err, wall.ErrChannelOffline) {
			w.WriteHeader(http.StatusAccepted)
			writeJSON(w, map[string]any{"bookmarked": true})
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]string{"key": key})
	case http.MethodDelete:
		key := r.URL.Query().Get("key")
		if key == "" {
			http.Error(w, "key required", http.StatusBadRequest)
			return
		}
		if !s.wall.RemoveManual(key) {
			http.Error(w, "not pinned", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.wall.Bookmarks())
	case http.MethodPut:
		var bookmarks []core.Bookmark
		if err := json.NewDecoder(r.Body).Decode(&bookmarks); err != nil {
			http.Error(w, "invalid bookmark list", http.StatusBadRequest)
			return
		}
		s.wall.SetBookmarks(r.Context(), bookmarks)
		writeJSON(w, s.wall.Bookmarks())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePrefs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		PlatformOrder     []string `json:"platform_order"`
		YouTubeMultiplier *float64 `json:"youtube_multiplier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid prefs", http.StatusBadRequest)
		return
	}
	if len(req.PlatformOrder) > 0 {
		s.wall.SetPlatformOrder(req.PlatformOrder)
	}
	if req.YouTubeMultiplier != nil {
		s.wall.SetYouTubeMultiplier(r.Context(), *req.YouTubeMultiplier)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminPoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	platform := r.URL.Query().Get("platform")
	s.wall.PollNow(platform)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	clientCh := make(chan []byte, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.clients[clientCh] = struct{}{}
	s.mu.Unlock()
	s.metrics.IncSSEClients(1)

	defer func() {
		s.mu.Lock()
		delete(s.clients, clientCh)
		s.mu.Unlock()
		s.metrics.IncSSEClients(-1)
	}()

	// Every client starts with a full snapshot.
	if data, err := json.Marshal(s.wall.Snapshot()); err == nil {
		fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
		flusher.Flush()
	}

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ":ping\n\n")
			flusher.Flush()
		case data, ok := <-clientCh:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// BroadcastState pushes the current snapshot to every SSE client. Slow
// clients drop updates rather than block the wall.
func (s *Server) BroadcastState() {
	data, err := json.Marshal(s.wall.Snapshot())
	if err != nil {
		return
	}
	s.metrics.IncStateChanges()

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
			s.metrics.IncBroadcastDrops()
		}
	}
}

func (s *Server) Start() error {
	log.Printf("httpapi: listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for ch := range s.clients {
		close(ch)
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func queryFloat(raw string, def float64) float64 {
	if raw == "" {
		return def
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return def
}
