// Package httpserver handles all message traffic between the editor and the browser.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"qmk-keymap-preview/internal/contracts"
	"qmk-keymap-preview/internal/render"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
)

// SessionHandler serves one preview session.
type SessionHandler interface {
	RenderPage() (string, error)
	RenderSource() (string, error)
	OnConnected()
	OnKeymap(msg contracts.KeymapFromPreviewMessage)
	OnLog(msg contracts.LogMessage)
}

// Options configures a PreviewServer.
type Options struct {
	Addr           string
	AssetDir       string
	AssetBaseURL   string
	AllowedOrigins []string
}

// PreviewServer coordinates HTTP serving and WebSocket updates.
type PreviewServer struct {
	opts Options

	mu       sync.Mutex
	started  bool
	listener net.Listener
	server   *http.Server
	channels map[string]*Channel

	router   chi.Router
	upgrader websocket.Upgrader
}

// NewPreviewServer creates an HTTP/WebSocket preview server.
func NewPreviewServer(opts Options) *PreviewServer {
	if opts.AssetBaseURL == "" {
		opts.AssetBaseURL = render.DefaultBaseURL
	}
	m := &PreviewServer{
		opts:     opts,
		channels: make(map[string]*Channel),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	m.router = m.buildRouter()
	return m
}

func (m *PreviewServer) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(m.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: m.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get(render.BridgePath, m.handleBridge)
	r.Get("/preview/{id}", m.handlePage)
	r.Get("/preview/{id}/source", m.handleSource)
	r.Get("/preview/{id}/ws", m.handleWS)

	if m.opts.AssetDir != "" {
		prefix := m.opts.AssetBaseURL
		if prefix[len(prefix)-1] != '/' {
			prefix += "/"
		}
		// Absolute URL bases (file://, another host) are not ours to serve.
		if prefix[0] == '/' {
			assets := http.StripPrefix(prefix, http.FileServer(http.Dir(m.opts.AssetDir)))
			r.Get(prefix+"*", assets.ServeHTTP)
			r.Head(prefix+"*", assets.ServeHTTP)
		}
	}
	return r
}

// Handler returns the router, for tests and embedding.
func (m *PreviewServer) Handler() http.Handler {
	return m.router
}

// URL returns the browser URL for the preview server.
func (m *PreviewServer) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return "http://" + m.listener.Addr().String()
	}
	return "http://" + m.opts.Addr
}

// SessionURL returns the page URL of session id.
func (m *PreviewServer) SessionURL(id string) string {
	return m.URL() + "/preview/" + id
}

// Start binds the listener on first call. Later calls are no-ops.
func (m *PreviewServer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	ln, err := net.Listen("tcp", m.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", m.opts.Addr, err)
	}

	m.listener = ln
	m.server = &http.Server{Handler: m.router, ReadHeaderTimeout: 10 * time.Second}
	m.started = true

	srv := m.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[qmk-keymap-preview] preview server: %v", err)
		}
	}()
	log.Printf("[qmk-keymap-preview] preview server listening on %s", ln.Addr())
	return nil
}

// Attach registers the session id and returns its channel.
// An existing channel with the same id is closed first.
func (m *PreviewServer) Attach(id string, handler SessionHandler) *Channel {
	ch := newChannel(id, handler)

	m.mu.Lock()
	old := m.channels[id]
	m.channels[id] = ch
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	go ch.runLoop()
	return ch
}

// Detach closes and forgets session id.
func (m *PreviewServer) Detach(id string) {
	m.mu.Lock()
	ch := m.channels[id]
	delete(m.channels, id)
	m.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
}

// ReloadAll asks every attached page to reload.
func (m *PreviewServer) ReloadAll() {
	m.mu.Lock()
	channels := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		if err := ch.Reload(); err != nil {
			log.Printf("[qmk-keymap-preview] reload %s: %v", ch.ID(), err)
		}
	}
}

// Stop gracefully shuts down the HTTP server and every channel.
func (m *PreviewServer) Stop() error {
	m.mu.Lock()
	channels := m.channels
	m.channels = make(map[string]*Channel)
	srv := m.server
	wasStarted := m.started
	m.started = false
	m.server = nil
	m.listener = nil
	m.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}

	if !wasStarted || srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (m *PreviewServer) channel(r *http.Request) (*Channel, bool) {
	id := chi.URLParam(r, "id")
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	return ch, ok
}

// handleBridge serves the script that connects the page to its socket.
func (m *PreviewServer) handleBridge(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(render.BridgeScript()))
}

// handlePage serves the rewritten keymap editor page.
func (m *PreviewServer) handlePage(w http.ResponseWriter, r *http.Request) {
	ch, ok := m.channel(r)
	if !ok {
		http.Error(w, "preview session not found", http.StatusNotFound)
		return
	}

	page, err := ch.handler.RenderPage()
	if err != nil {
		log.Printf("[qmk-keymap-preview] rendering page for %s: %v", ch.id, err)
		http.Error(w, "preview unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(page))
}

// handleSource serves the highlighted document source.
func (m *PreviewServer) handleSource(w http.ResponseWriter, r *http.Request) {
	ch, ok := m.channel(r)
	if !ok {
		http.Error(w, "preview session not found", http.StatusNotFound)
		return
	}

	page, err := ch.handler.RenderSource()
	if err != nil {
		log.Printf("[qmk-keymap-preview] rendering source for %s: %v", ch.id, err)
		http.Error(w, "source unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// handleWS upgrades the connection and dispatches browser messages to the session.
func (m *PreviewServer) handleWS(w http.ResponseWriter, r *http.Request) {
	ch, ok := m.channel(r)
	if !ok {
		http.Error(w, "preview session not found", http.StatusNotFound)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[qmk-keymap-preview] websocket upgrade: %v", err)
		return
	}

	if !ch.attach(conn) {
		_ = conn.Close()
		return
	}
	defer ch.detach(conn)

	// Block here until the connection closes / errors out
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		ch.dispatch(raw)
	}
}

// dispatch routes one inbound frame to the session handler.
func (c *Channel) dispatch(raw []byte) {
	var envelope contracts.IncomingMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		log.Printf("[qmk-keymap-preview] %s: malformed message: %v", c.id, err)
		return
	}

	switch envelope.Command {
	case contracts.CommandConnectedPreview:
		c.handler.OnConnected()

	case contracts.CommandKeymapFromPreview:
		var msg contracts.KeymapFromPreviewMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[qmk-keymap-preview] %s: malformed keymap message: %v", c.id, err)
			return
		}
		c.handler.OnKeymap(msg)

	case contracts.CommandLogging:
		var msg contracts.LogMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[qmk-keymap-preview] %s: malformed log message: %v", c.id, err)
			return
		}
		c.handler.OnLog(msg)

	case contracts.CommandHostLink:
		var msg contracts.HostLinkMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[qmk-keymap-preview] %s: malformed host link: %v", c.id, err)
			return
		}
		frame, err := contracts.ParseHostLink(msg.Link)
		if err != nil {
			log.Printf("[qmk-keymap-preview] %s: %v", c.id, err)
			return
		}
		c.dispatch(frame)

	default:
		log.Printf("[qmk-keymap-preview] %s: unknown command %q", c.id, envelope.Command)
	}
}
