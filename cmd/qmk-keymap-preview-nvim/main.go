package main

import (
	"log"

	"qmk-keymap-preview/internal/host"

	"github.com/neovim/go-client/nvim/plugin"
)

// plugin.Main connects to Neovim over stdio, hands us the plugin to register
// handlers on, and serves requests until Neovim goes away.
func main() {
	plugin.Main(func(p *plugin.Plugin) error {
		log.Println("[qmk-keymap-preview] registering handlers")
		return host.Register(p)
	})
}
