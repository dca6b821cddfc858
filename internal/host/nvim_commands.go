package host

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"qmk-keymap-preview/internal/app"
	"qmk-keymap-preview/internal/config"
	"qmk-keymap-preview/internal/filedoc"

	"github.com/neovim/go-client/nvim"
	"github.com/neovim/go-client/nvim/plugin"
)

// settingsVar is the global dictionary that overrides file and env config.
const settingsVar = "qmk_keymap_preview"

// Commands is a state container for Neovim command handlers.
// The live preview is built on first use from the config in effect at that
// moment and dropped again by QmkKeymapPreviewStop.
type Commands struct {
	configPath string

	mu      sync.Mutex
	preview *app.LivePreview
	cfg     *config.Config
}

func NewCommands(configPath string) *Commands {
	return &Commands{configPath: configPath}
}

// Register registers Neovim command and autocmd handlers.
func Register(p *plugin.Plugin) error {
	configPath := os.Getenv("QMK_KEYMAP_PREVIEW_CONFIG")
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	commands := NewCommands(configPath)

	p.Handle("poll", func() (string, error) {
		return "ok", nil
	})

	p.HandleCommand(&plugin.CommandOptions{
		Name: "QmkKeymapPreview",
	}, commands.QmkKeymapPreview)

	p.HandleCommand(&plugin.CommandOptions{
		Name: "QmkKeymapPreviewClose",
	}, commands.QmkKeymapPreviewClose)

	p.HandleCommand(&plugin.CommandOptions{
		Name: "QmkKeymapPreviewStop",
	}, commands.QmkKeymapPreviewStop)

	p.HandleAutocmd(&plugin.AutocmdOptions{
		Event:   "TextChanged,TextChangedI",
		Pattern: "*",
		Eval:    "expand('<afile>:p')",
	}, commands.BufferChanged)

	p.HandleAutocmd(&plugin.AutocmdOptions{
		Event:   "BufWipeout",
		Pattern: "*",
		Eval:    "expand('<afile>:p')",
	}, commands.BufferWiped)

	return nil
}

// QmkKeymapPreview opens the preview for the current buffer.
func (c *Commands) QmkKeymapPreview(v *nvim.Nvim) error {
	lp, cfg, err := c.livePreview(v)
	if err != nil {
		return echoErr(v, err)
	}

	buf, err := v.CurrentBuffer()
	if err != nil {
		return echoErr(v, err)
	}
	doc, err := newBufferDocument(v, buf)
	if err != nil {
		return echoErr(v, fmt.Errorf("%w: %v", app.ErrNoDocument, err))
	}

	session, err := lp.Open(doc)
	if err != nil {
		return echoErr(v, err)
	}

	if err := echo(v, "preview: "+session.URL()); err != nil {
		return err
	}

	if cfg.OpenBrowser {
		if err := app.OpenBrowser(cfg.BrowserCommand, session.URL()); err != nil {
			return echoErr(v, err)
		}
	}
	return nil
}

// QmkKeymapPreviewClose closes the preview of the current buffer.
func (c *Commands) QmkKeymapPreviewClose(v *nvim.Nvim) error {
	lp := c.current()
	if lp == nil {
		return nil
	}

	name, err := v.BufferName(0)
	if err != nil {
		return echoErr(v, err)
	}
	if name == "" || !lp.Close(filedoc.FileURI(name)) {
		return echo(v, "no preview open for this buffer")
	}
	return echo(v, "preview closed")
}

// QmkKeymapPreviewStop shuts down the preview server and every session.
func (c *Commands) QmkKeymapPreviewStop(v *nvim.Nvim) error {
	c.mu.Lock()
	lp := c.preview
	c.preview = nil
	c.cfg = nil
	c.mu.Unlock()

	if lp == nil {
		return nil
	}
	if err := lp.Stop(); err != nil {
		return echoErr(v, err)
	}
	return echo(v, "preview server stopped")
}

// BufferChanged routes a text change to the session showing path.
func (c *Commands) BufferChanged(path string) {
	lp := c.current()
	if lp == nil || path == "" {
		return
	}
	lp.DocumentChanged(filedoc.FileURI(path))
}

// BufferWiped ends the session of a buffer that no longer exists.
func (c *Commands) BufferWiped(path string) {
	lp := c.current()
	if lp == nil || path == "" {
		return
	}
	lp.Close(filedoc.FileURI(path))
}

func (c *Commands) current() *app.LivePreview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview
}

func (c *Commands) livePreview(v *nvim.Nvim) (*app.LivePreview, *config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.preview != nil {
		return c.preview, c.cfg, nil
	}

	cfg, err := config.Load(c.configPath, config.Values(editorSettings(v)))
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	c.preview = app.NewLivePreview(*cfg)
	c.cfg = cfg
	return c.preview, cfg, nil
}

// editorSettings reads g:qmk_keymap_preview. An undefined variable yields nil.
func editorSettings(v *nvim.Nvim) map[string]any {
	var settings map[string]any
	if err := v.Var(settingsVar, &settings); err != nil {
		return nil
	}
	return settings
}

func echo(v *nvim.Nvim, msg string) error {
	return v.Command("echom " + vimString("[qmk-keymap-preview] "+msg))
}

func echoErr(v *nvim.Nvim, err error) error {
	log.Printf("[qmk-keymap-preview] %v", err)
	return v.Command("echohl ErrorMsg | echom " + vimString("[qmk-keymap-preview] "+err.Error()) + " | echohl None")
}

// vimString quotes s as a single-quoted Vim string literal on one line.
func vimString(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
