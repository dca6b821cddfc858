package app

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"qmk-keymap-preview/internal/config"
	"qmk-keymap-preview/internal/contracts"
)

type memoryDocument struct {
	mu   sync.Mutex
	uri  string
	text string
}

func (d *memoryDocument) URI() string { return d.uri }

func (d *memoryDocument) Text() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text, nil
}

func (d *memoryDocument) Replace(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
	return nil
}

func (d *memoryDocument) get() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

const testIndex = `<html><head><script>//extension-settings</script><script src="main.js"></script></head><body><div id="app"></div></body></html>`

func newTestPreview(t *testing.T) *LivePreview {
	t.Helper()
	assets := t.TempDir()
	if err := os.WriteFile(filepath.Join(assets, "index.html"), []byte(testIndex), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := *config.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.AssetDir = assets
	cfg.Debounce = 20 * time.Millisecond
	cfg.ReloadOnAssetChange = false

	lp := NewLivePreview(cfg)
	t.Cleanup(func() { _ = lp.Stop() })
	return lp
}

func dialSession(t *testing.T, session *Session) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(session.URL(), "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readKeymap(t *testing.T, conn *websocket.Conn) contracts.SetKeymapMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg contracts.SetKeymapMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func TestOpenRequiresDocument(t *testing.T) {
	lp := newTestPreview(t)

	if _, err := lp.Open(nil); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	if _, err := lp.Open(&memoryDocument{}); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument for empty URI, got %v", err)
	}
}

func TestOpenReusesSessionPerDocument(t *testing.T) {
	lp := newTestPreview(t)
	a := &memoryDocument{uri: "file:///a/keymap.c"}
	b := &memoryDocument{uri: "file:///b/keymap.c"}

	s1, err := lp.Open(a)
	if err != nil {
		t.Fatalf("Open a: %v", err)
	}
	s2, err := lp.Open(a)
	if err != nil {
		t.Fatalf("Open a again: %v", err)
	}
	s3, err := lp.Open(b)
	if err != nil {
		t.Fatalf("Open b: %v", err)
	}

	if s1 != s2 {
		t.Error("reopening a document should reuse its session")
	}
	if s1.ID() == s3.ID() {
		t.Error("different documents should get different sessions")
	}
	if lp.Sessions() != 2 {
		t.Errorf("expected 2 sessions, got %d", lp.Sessions())
	}
}

func TestPageIsRewrittenForSession(t *testing.T) {
	lp := newTestPreview(t)
	session, err := lp.Open(&memoryDocument{uri: "file:///k/keymap.c"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	resp, err := http.Get(session.URL())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	page := string(body)
	for _, want := range []string{`window["VSC_MODE"] = true;`, `src="/assets/main.js"`, `"file:///k/keymap.c"`} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}

	resp, err = http.Get(session.URL() + "/source")
	if err != nil {
		t.Fatalf("GET source: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("source view: expected 200, got %d", resp.StatusCode)
	}
}

func TestRoundTripThroughPreview(t *testing.T) {
	lp := newTestPreview(t)
	doc := &memoryDocument{uri: "file:///k/keymap.c", text: "LAYOUT(KC_A)"}
	session, err := lp.Open(doc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	conn := dialSession(t, session)

	// Ready signal forces a resync.
	if err := conn.WriteJSON(contracts.IncomingMessage{Command: contracts.CommandConnectedPreview}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readKeymap(t, conn); msg.Keymap != "LAYOUT(KC_A)" {
		t.Fatalf("resync sent %q", msg.Keymap)
	}

	// Edit from the page lands in the document.
	edit := contracts.KeymapFromPreviewMessage{
		Command:     contracts.CommandKeymapFromPreview,
		DocumentURI: doc.URI(),
		Keymap:      "LAYOUT(KC_B)",
	}
	if err := conn.WriteJSON(edit); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && doc.get() != "LAYOUT(KC_B)" {
		time.Sleep(10 * time.Millisecond)
	}
	if doc.get() != "LAYOUT(KC_B)" {
		t.Fatalf("document = %q", doc.get())
	}

	// The change notification for that edit is an echo and must not be sent.
	lp.DocumentChanged(doc.URI())
	time.Sleep(100 * time.Millisecond)

	// A real local edit is sent.
	_ = doc.Replace("LAYOUT(KC_C)")
	lp.DocumentChanged(doc.URI())
	if msg := readKeymap(t, conn); msg.Keymap != "LAYOUT(KC_C)" {
		t.Fatalf("expected local edit, got %q", msg.Keymap)
	}
}

func TestAssetChangeInSubdirectoryReloadsPage(t *testing.T) {
	assets := t.TempDir()
	if err := os.WriteFile(filepath.Join(assets, "index.html"), []byte(testIndex), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	static := filepath.Join(assets, "static")
	if err := os.Mkdir(static, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	cfg := *config.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.AssetDir = assets
	cfg.ReloadOnAssetChange = true
	lp := NewLivePreview(cfg)
	t.Cleanup(func() { _ = lp.Stop() })

	session, err := lp.Open(&memoryDocument{uri: "file:///k/keymap.c"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	conn := dialSession(t, session)
	// Give the run loop time to register the connection.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(static, "app.js"), []byte("rebuilt()"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg contracts.ReloadMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Command != contracts.CommandReload {
		t.Fatalf("expected reload, got %+v", msg)
	}
}

func TestChangesForOtherDocumentsAreIgnored(t *testing.T) {
	lp := newTestPreview(t)
	doc := &memoryDocument{uri: "file:///k/keymap.c", text: "v1"}
	session, err := lp.Open(doc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	lp.DocumentChanged("file:///elsewhere.c")
	if session.Controller().Pending() {
		t.Fatal("a change to another document should not schedule a sync")
	}

	lp.DocumentChanged(doc.URI())
	if !session.Controller().Pending() {
		t.Fatal("a change to the previewed document should schedule a sync")
	}
}

func TestCloseEndsSession(t *testing.T) {
	lp := newTestPreview(t)
	doc := &memoryDocument{uri: "file:///k/keymap.c"}
	session, err := lp.Open(doc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if !lp.Close(doc.URI()) {
		t.Fatal("Close should report an open session")
	}
	if lp.Close(doc.URI()) {
		t.Fatal("second Close should report nothing to close")
	}

	resp, err := http.Get(session.URL())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", resp.StatusCode)
	}
}

func TestDocumentTitle(t *testing.T) {
	tests := map[string]string{
		"file:///home/me/qmk/keymap.c": "keymap.c",
		"file:///keymap%20copy.c":      "keymap copy.c",
		"untitled":                     "untitled",
	}
	for uri, want := range tests {
		if got := documentTitle(uri); got != want {
			t.Errorf("documentTitle(%q) = %q, want %q", uri, got, want)
		}
	}
}
