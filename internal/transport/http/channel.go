package httpserver

import (
	"errors"
	"sync"

	"qmk-keymap-preview/internal/contracts"

	"github.com/gorilla/websocket"
)

// ErrChannelClosed is returned when sending on a closed channel.
var ErrChannelClosed = errors.New("httpserver: preview channel closed")

// Channel is the message path to one preview page.
// The page connects over WebSocket; a newer connection replaces the older one.
type Channel struct {
	id      string
	handler SessionHandler

	outbound   chan any
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopLoop   chan struct{}
	stopOnce   sync.Once
}

func newChannel(id string, handler SessionHandler) *Channel {
	return &Channel{
		id:         id,
		handler:    handler,
		outbound:   make(chan any, 8),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopLoop:   make(chan struct{}),
	}
}

// ID returns the session id the channel serves.
func (c *Channel) ID() string {
	return c.id
}

// Send queues a keymap for the page. When no page is connected the latest
// keymap is held and delivered on the next connection.
func (c *Channel) Send(msg contracts.SetKeymapMessage) error {
	msg.Command = contracts.CommandSetKeymap
	return c.send(msg)
}

// Reload asks the connected page to reload itself.
func (c *Channel) Reload() error {
	return c.send(contracts.ReloadMessage{Command: contracts.CommandReload})
}

func (c *Channel) send(msg any) error {
	select {
	case <-c.stopLoop:
		return ErrChannelClosed
	default:
	}

	select {
	case c.outbound <- msg:
		return nil
	case <-c.stopLoop:
		return ErrChannelClosed
	}
}

// Close disconnects the page and stops the run loop.
func (c *Channel) Close() {
	c.stopOnce.Do(func() {
		close(c.stopLoop)
	})
}

func (c *Channel) attach(conn *websocket.Conn) bool {
	select {
	case c.register <- conn:
		return true
	case <-c.stopLoop:
		return false
	}
}

func (c *Channel) detach(conn *websocket.Conn) {
	select {
	case c.unregister <- conn:
	case <-c.stopLoop:
	}
}

// runLoop serializes websocket writes on a single goroutine.
func (c *Channel) runLoop() {
	var conn *websocket.Conn

	// Latest keymap not yet delivered to any page.
	var pending *contracts.SetKeymapMessage

	for {
		select {
		case msg := <-c.outbound:
			if conn == nil {
				if keymap, ok := msg.(contracts.SetKeymapMessage); ok {
					pending = &keymap
				}
				continue
			}
			if !writeJSON(conn, msg) {
				conn = nil
				if keymap, ok := msg.(contracts.SetKeymapMessage); ok {
					pending = &keymap
				}
			}

		case next := <-c.register:
			if conn != nil {
				_ = conn.Close()
			}
			conn = next

			if pending == nil {
				continue
			}
			if writeJSON(conn, *pending) {
				pending = nil
			} else {
				conn = nil
			}

		case gone := <-c.unregister:
			if conn == gone {
				_ = conn.Close()
				conn = nil
			}

		case <-c.stopLoop:
			if conn != nil {
				_ = conn.Close()
				conn = nil
			}
			return
		}
	}
}

// writeJSON writes a JSON message and reports whether the connection is usable.
func writeJSON(conn *websocket.Conn, v any) bool {
	if err := conn.WriteJSON(v); err != nil {
		_ = conn.Close()
		return false
	}
	return true
}
