// Package keymapsync keeps a document and its preview in step.
//
// Outbound changes are debounced and deduplicated against the last text that
// crossed the bridge in either direction, so an edit applied from the preview
// is never sent straight back to it.
package keymapsync

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"qmk-keymap-preview/internal/contracts"
)

// DefaultDebounce must stay longer than a held key's repeat interval.
const DefaultDebounce = time.Second

var (
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("keymapsync: controller closed")
	// ErrForeignDocument is returned when a preview edit names another document.
	ErrForeignDocument = errors.New("keymapsync: edit targets a different document")
)

// Document is the editor side of a preview session.
type Document interface {
	URI() string
	Text() (string, error)
	// Replace swaps the whole document body for text.
	Replace(text string) error
}

// Sender delivers messages to the preview.
type Sender interface {
	Send(msg contracts.SetKeymapMessage) error
}

// Timer is the part of *time.Timer the controller needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce overrides DefaultDebounce. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.afterFunc = fn
		}
	}
}

// Controller synchronizes one document with one preview.
type Controller struct {
	doc       Document
	sender    Sender
	debounce  time.Duration
	afterFunc AfterFunc

	mu         sync.Mutex
	lastSynced string
	pending    Timer
	generation uint64
	closed     bool
	// applying counts preview edits between their Replace and read-back.
	// Timers that expire meanwhile are deferred until the last one finishes.
	applying int
	deferred bool
}

// NewController returns an idle controller for doc that sends through sender.
func NewController(doc Document, sender Sender, opts ...Option) *Controller {
	c := &Controller{
		doc:       doc,
		sender:    sender,
		debounce:  DefaultDebounce,
		afterFunc: realAfterFunc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Debounce reports the configured debounce interval.
func (c *Controller) Debounce() time.Duration {
	return c.debounce
}

// LastSynced returns the text last pushed to or received from the preview.
func (c *Controller) LastSynced() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSynced
}

// Pending reports whether a debounced send is scheduled.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// DocumentChanged (re)starts the debounce timer.
func (c *Controller) DocumentChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.scheduleLocked()
}

func (c *Controller) scheduleLocked() {
	c.cancelPendingLocked()
	gen := c.generation
	c.pending = c.afterFunc(c.debounce, func() {
		c.fire(gen)
	})
}

// fire runs when the debounce timer for generation gen expires.
func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	if c.applying > 0 {
		c.deferred = true
		c.mu.Unlock()
		return
	}

	text, err := c.doc.Text()
	if err != nil {
		c.mu.Unlock()
		log.Printf("[qmk-keymap-preview] reading %s: %v", c.doc.URI(), err)
		return
	}
	if text == c.lastSynced {
		c.mu.Unlock()
		return
	}
	c.lastSynced = text
	c.mu.Unlock()

	if err := c.sender.Send(contracts.NewSetKeymap(text)); err != nil {
		log.Printf("[qmk-keymap-preview] sending keymap for %s: %v", c.doc.URI(), err)
		c.forget(text)
	}
}

// Resync sends the current text immediately, ignoring the debounce and the
// last-synced cache.
func (c *Controller) Resync() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cancelPendingLocked()

	text, err := c.doc.Text()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("reading %s: %w", c.doc.URI(), err)
	}
	c.lastSynced = text
	c.mu.Unlock()

	if err := c.sender.Send(contracts.NewSetKeymap(text)); err != nil {
		c.forget(text)
		return fmt.Errorf("sending keymap for %s: %w", c.doc.URI(), err)
	}
	return nil
}

// ApplyFromPreview writes an edit received from the preview into the
// document. An empty DocumentURI means this controller's document.
func (c *Controller) ApplyFromPreview(msg contracts.KeymapFromPreviewMessage) error {
	if msg.DocumentURI != "" && msg.DocumentURI != c.doc.URI() {
		return fmt.Errorf("%w: got %s, want %s", ErrForeignDocument, msg.DocumentURI, c.doc.URI())
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	// A send scheduled before the edit would push text the preview already
	// replaced.
	c.cancelPendingLocked()
	c.applying++
	// Recorded before the edit so the change notification it triggers is
	// recognized as an echo.
	c.lastSynced = msg.Keymap
	c.mu.Unlock()

	if err := c.doc.Replace(msg.Keymap); err != nil {
		c.finishApply(msg.Keymap, "")
		return fmt.Errorf("applying preview edit to %s: %w", c.doc.URI(), err)
	}

	// The document may normalize what it stores (line endings, trailing
	// newline); the normalized text is the echo to suppress.
	text, err := c.doc.Text()
	if err != nil {
		text = msg.Keymap
	}
	c.finishApply(msg.Keymap, text)
	return nil
}

// finishApply replaces the cached keymap with the text read back from the
// document, or clears it when stored is empty. A send deferred during the
// edit is rescheduled.
func (c *Controller) finishApply(keymap, stored string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.applying--
	if c.lastSynced == keymap {
		c.lastSynced = stored
	}
	if c.applying == 0 && c.deferred {
		c.deferred = false
		if !c.closed {
			c.scheduleLocked()
		}
	}
}

// Close cancels any pending send. Further changes are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPendingLocked()
	c.closed = true
}

func (c *Controller) cancelPendingLocked() {
	c.generation++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

// forget clears the cache if it still holds text, so the next change retries.
func (c *Controller) forget(text string) {
	c.mu.Lock()
	if c.lastSynced == text {
		c.lastSynced = ""
	}
	c.mu.Unlock()
}
