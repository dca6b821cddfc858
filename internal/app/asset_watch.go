package app

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// assetReloadDelay coalesces the burst of events a bundle rebuild produces.
const assetReloadDelay = 200 * time.Millisecond

func (s *LivePreview) startAssetWatchLocked() {
	if !s.cfg.ReloadOnAssetChange || s.cfg.AssetDir == "" || s.stopWatcher != nil {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[qmk-keymap-preview] asset watcher: %v", err)
		return
	}
	if err := addTree(watcher, s.cfg.AssetDir); err != nil {
		_ = watcher.Close()
		log.Printf("[qmk-keymap-preview] watching %s: %v", s.cfg.AssetDir, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopWatcher = cancel
	go s.watchAssets(ctx, watcher)
}

// watchAssets asks every page to reload after the bundle changes on disk.
func (s *LivePreview) watchAssets(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						log.Printf("[qmk-keymap-preview] watching %s: %v", event.Name, err)
					}
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				reload = time.After(assetReloadDelay)
			}
		case <-reload:
			reload = nil
			log.Printf("[qmk-keymap-preview] assets changed, reloading previews")
			s.preview.ReloadAll()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[qmk-keymap-preview] asset watcher error: %v", err)
		}
	}
}

// addTree watches root and every directory below it. fsnotify is not
// recursive, and bundles keep scripts in subdirectories.
func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}
