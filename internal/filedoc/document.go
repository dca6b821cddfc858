// Package filedoc exposes a keymap file on disk as a preview document.
package filedoc

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Document is a file-backed keymap.
type Document struct {
	path string
	uri  string

	mu sync.Mutex
}

// Open returns a document for the regular file at path.
func Open(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening keymap %s: %w", abs, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("opening keymap %s: is a directory", abs)
	}
	return &Document{path: abs, uri: FileURI(abs)}, nil
}

// FileURI returns the file:// URI of an absolute path.
func FileURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// Path returns the absolute file path.
func (d *Document) Path() string {
	return d.path
}

// URI returns the file:// URI of the document.
func (d *Document) URI() string {
	return d.uri
}

// Text returns the file contents.
func (d *Document) Text() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", d.path, err)
	}
	return string(data), nil
}

// Replace overwrites the file with text, keeping its permissions.
// The write goes through a temp file and rename so watchers never see a
// truncated keymap.
func (d *Document) Replace(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	mode := os.FileMode(0o644)
	if info, err := os.Stat(d.path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), "."+filepath.Base(d.path)+".*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", d.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", d.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", d.path, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("writing %s: %w", d.path, err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("writing %s: %w", d.path, err)
	}
	return nil
}

// Watch calls onChange whenever the file is written, created or renamed into
// place, until ctx is done. It watches the parent directory so editors that
// save by rename are seen too.
func (d *Document) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(d.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(d.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != d.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[qmk-keymap-preview] watcher error: %v", err)
		}
	}
}
