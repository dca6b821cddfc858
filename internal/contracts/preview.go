package contracts

import "encoding/json"

const (
	// CommandSetKeymap pushes the full document text to the preview.
	CommandSetKeymap = "setKeymap"
	// CommandReload asks the preview page to reload itself after the asset bundle changed.
	CommandReload = "reload"
	// CommandKeymapFromPreview carries an edit made in the preview back to the editor.
	CommandKeymapFromPreview = "keymapFromPreview"
	// CommandConnectedPreview signals that the preview page is ready to receive a keymap.
	CommandConnectedPreview = "connectedPreview"
	// CommandLogging forwards a diagnostic payload from the preview.
	CommandLogging = "logging"
)

// IncomingMessage is the minimal envelope used to route browser messages.
type IncomingMessage struct {
	Command string `json:"command"`
}

// SetKeymapMessage carries the document text to the browser.
type SetKeymapMessage struct {
	Command string `json:"command"`
	Keymap  string `json:"keymap"`
}

// NewSetKeymap builds a setKeymap message for keymap.
func NewSetKeymap(keymap string) SetKeymapMessage {
	return SetKeymapMessage{Command: CommandSetKeymap, Keymap: keymap}
}

// ReloadMessage tells the browser to reload the page.
type ReloadMessage struct {
	Command string `json:"command"`
}

// KeymapFromPreviewMessage is an edit made in the preview.
type KeymapFromPreviewMessage struct {
	Command     string `json:"command"`
	DocumentURI string `json:"documentUri"`
	Keymap      string `json:"keymap"`
}

// LogMessage is an opaque diagnostic payload from the preview.
type LogMessage struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}
