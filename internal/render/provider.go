package render

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// IndexFile is the entry point of the keymap editor bundle.
	IndexFile = "index.html"
	// SettingsMarker is the line the bundle reserves for host settings.
	SettingsMarker = "//extension-settings"
	// EmbeddedModeFlag tells the bundle it runs inside an editor host.
	EmbeddedModeFlag = `window["VSC_MODE"] = true;`
	// BridgePath is where the HTTP layer serves the bridge script.
	BridgePath = "/@bridge.js"
	// DefaultBaseURL is where the HTTP layer serves the asset directory.
	DefaultBaseURL = "/assets/"
)

//go:embed bridge.js
var bridgeScript string

// BridgeScript returns the script connecting the page to the preview socket.
func BridgeScript() string {
	return bridgeScript
}

// Provider produces the preview page from the keymap editor bundle on disk.
type Provider struct {
	assetDir string
	baseURL  string
}

// NewProvider returns a provider reading from assetDir and pointing resource
// URLs at baseURL.
func NewProvider(assetDir string, baseURL string) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Provider{assetDir: assetDir, baseURL: baseURL}
}

// BaseURL returns the prefix applied to src and href attributes.
func (p *Provider) BaseURL() string {
	return p.baseURL
}

// RenderPage returns the bundle's index page rewritten for the document
// identified by documentURI. It fails if the index cannot be read.
func (p *Provider) RenderPage(documentURI string) (string, error) {
	indexPath := filepath.Join(p.assetDir, IndexFile)
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return "", fmt.Errorf("reading preview asset %s: %w", indexPath, err)
	}

	page := RewritePage(string(data), p.baseURL)
	return InjectBridge(page, documentURI), nil
}

// RewritePage swaps the first settings marker for the embedded-mode flag and
// prefixes every src and href attribute value with baseURL.
func RewritePage(page string, baseURL string) string {
	page = strings.Replace(page, SettingsMarker, EmbeddedModeFlag, 1)
	page = strings.ReplaceAll(page, `src="`, `src="`+baseURL)
	page = strings.ReplaceAll(page, `href="`, `href="`+baseURL)
	return page
}

// InjectBridge inserts the bridge script before the last closing body tag,
// or appends it when the page has none.
func InjectBridge(page string, documentURI string) string {
	// json.Marshal escapes <, > and & so the URI cannot close the script tag.
	uri, _ := json.Marshal(documentURI)

	var snippet strings.Builder
	snippet.WriteString(`<script>window["QMK_PREVIEW_DOCUMENT_URI"] = `)
	snippet.Write(uri)
	snippet.WriteString(";</script>\n")
	snippet.WriteString(`<script src="`)
	snippet.WriteString(BridgePath)
	snippet.WriteString(`"></script>`)
	snippet.WriteString("\n")

	idx := max(strings.LastIndex(page, "</body>"), strings.LastIndex(page, "</BODY>"))
	if idx < 0 {
		return page + snippet.String()
	}
	return page[:idx] + snippet.String() + page[idx:]
}
