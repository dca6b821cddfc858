package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"qmk-keymap-preview/internal/config"
	"qmk-keymap-preview/internal/keymapsync"
	"qmk-keymap-preview/internal/render"
	httptransport "qmk-keymap-preview/internal/transport/http"

	"github.com/google/uuid"
)

// ErrNoDocument is returned when a preview is requested without a document.
var ErrNoDocument = errors.New("no active keymap document")

// LivePreview is a coordinator between documents, sync controllers and HTTP delivery.
// Sessions are keyed by document URI.
type LivePreview struct {
	cfg         config.Config
	provider    *render.Provider
	highlighter *render.SourceHighlighter
	preview     *httptransport.PreviewServer
	syncOpts    []keymapsync.Option

	mu          sync.Mutex
	sessions    map[string]*Session
	stopWatcher context.CancelFunc
}

// NewLivePreview wires a preview server for cfg. Nothing listens until the
// first session is opened.
func NewLivePreview(cfg config.Config, opts ...keymapsync.Option) *LivePreview {
	return &LivePreview{
		cfg:         cfg,
		provider:    render.NewProvider(cfg.AssetDir, cfg.AssetBaseURL),
		highlighter: render.NewSourceHighlighter(cfg.SourceStyle),
		preview: httptransport.NewPreviewServer(httptransport.Options{
			Addr:           cfg.Addr,
			AssetDir:       cfg.AssetDir,
			AssetBaseURL:   cfg.AssetBaseURL,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		syncOpts: append([]keymapsync.Option{keymapsync.WithDebounce(cfg.Debounce)}, opts...),
		sessions: make(map[string]*Session),
	}
}

// Open returns the session for doc, creating it and starting the server if
// needed.
func (s *LivePreview) Open(doc keymapsync.Document) (*Session, error) {
	if doc == nil || doc.URI() == "" {
		return nil, ErrNoDocument
	}

	if err := s.preview.Start(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.startAssetWatchLocked()

	if existing, ok := s.sessions[doc.URI()]; ok {
		return existing, nil
	}

	session := &Session{
		id:          uuid.NewString(),
		doc:         doc,
		provider:    s.provider,
		highlighter: s.highlighter,
	}
	session.controller = keymapsync.NewController(doc, session, s.syncOpts...)
	session.channel = s.preview.Attach(session.id, session)
	session.url = s.preview.SessionURL(session.id)
	s.sessions[doc.URI()] = session

	log.Printf("[qmk-keymap-preview] opened %s for %s (debounce %s)", session.id, session.DocumentURI(), session.controller.Debounce())
	return session, nil
}

// Session returns the open session for uri.
func (s *LivePreview) Session(uri string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[uri]
	return session, ok
}

// Sessions returns the number of open sessions.
func (s *LivePreview) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// DocumentChanged schedules a sync for the session showing uri, if any.
func (s *LivePreview) DocumentChanged(uri string) {
	session, ok := s.Session(uri)
	if !ok {
		return
	}
	session.controller.DocumentChanged()
}

// Close ends the session showing uri.
func (s *LivePreview) Close(uri string) bool {
	s.mu.Lock()
	session, ok := s.sessions[uri]
	delete(s.sessions, uri)
	s.mu.Unlock()

	if !ok {
		return false
	}
	session.close()
	s.preview.Detach(session.id)
	log.Printf("[qmk-keymap-preview] closed %s", session.id)
	return true
}

// Stop closes every session and shuts the server down.
func (s *LivePreview) Stop() error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	stopWatcher := s.stopWatcher
	s.stopWatcher = nil
	s.mu.Unlock()

	if stopWatcher != nil {
		stopWatcher()
	}
	for _, session := range sessions {
		session.close()
	}
	if err := s.preview.Stop(); err != nil {
		return fmt.Errorf("stopping preview server: %w", err)
	}
	return nil
}
