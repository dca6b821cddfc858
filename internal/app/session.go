package app

import (
	"errors"
	"log"
	"net/url"
	"path"

	"qmk-keymap-preview/internal/contracts"
	"qmk-keymap-preview/internal/keymapsync"
	"qmk-keymap-preview/internal/render"
	httptransport "qmk-keymap-preview/internal/transport/http"
)

// Session is one document shown in one preview page.
type Session struct {
	id  string
	url string

	doc         keymapsync.Document
	provider    *render.Provider
	highlighter *render.SourceHighlighter
	controller  *keymapsync.Controller
	channel     *httptransport.Channel
}

// ID returns the session id used in preview URLs.
func (s *Session) ID() string {
	return s.id
}

// URL returns the page address of the preview.
func (s *Session) URL() string {
	return s.url
}

// DocumentURI returns the identity of the previewed document.
func (s *Session) DocumentURI() string {
	return s.doc.URI()
}

// Controller exposes the sync state of the session.
func (s *Session) Controller() *keymapsync.Controller {
	return s.controller
}

// Send forwards outbound keymaps to the page.
func (s *Session) Send(msg contracts.SetKeymapMessage) error {
	if s.channel == nil {
		return httptransport.ErrChannelClosed
	}
	return s.channel.Send(msg)
}

// RenderPage implements httptransport.SessionHandler.
func (s *Session) RenderPage() (string, error) {
	return s.provider.RenderPage(s.doc.URI())
}

// RenderSource implements httptransport.SessionHandler.
func (s *Session) RenderSource() (string, error) {
	text, err := s.doc.Text()
	if err != nil {
		return "", err
	}
	return s.highlighter.RenderPage(documentTitle(s.doc.URI()), text)
}

// OnConnected resyncs the page as soon as it reports ready.
func (s *Session) OnConnected() {
	if err := s.controller.Resync(); err != nil {
		log.Printf("[qmk-keymap-preview] %s: resync: %v", s.id, err)
	}
}

// OnKeymap applies an edit made in the page.
func (s *Session) OnKeymap(msg contracts.KeymapFromPreviewMessage) {
	err := s.controller.ApplyFromPreview(msg)
	switch {
	case err == nil:
	case errors.Is(err, keymapsync.ErrForeignDocument):
		log.Printf("[qmk-keymap-preview] %s: ignoring edit: %v", s.id, err)
	default:
		log.Printf("[qmk-keymap-preview] %s: %v", s.id, err)
	}
}

// OnLog passes preview diagnostics through to the log.
func (s *Session) OnLog(msg contracts.LogMessage) {
	log.Printf("[qmk-keymap-preview] preview log (%s): %s", s.id, msg.Payload)
}

func (s *Session) close() {
	s.controller.Close()
}

// documentTitle returns the base name of a document URI.
func documentTitle(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		return uri
	}
	return path.Base(u.Path)
}
