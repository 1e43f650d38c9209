package inventory

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch re-loads the inventory file whenever it changes and hands the new
// service list to onReload. A load failure keeps the previous inventory in
// effect and logs a warning; the watcher never propagates parse errors.
//
// The parent directory is watched rather than the file itself so atomic
// rename-style saves (editors, configuration management) are picked up.
func Watch(ctx context.Context, path string, onReload func([]Service)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		// Debounce bursts of events from a single save.
		var pending *time.Timer
		reload := func() {
			services, err := Load(path)
			if err != nil {
				log.Printf("Inventory reload failed, keeping previous inventory: %v", err)
				return
			}
			log.Printf("Inventory reloaded: %d services", len(services))
			onReload(services)
		}

		for {
			select {
			case <-ctx.Done():
				if pending != nil {
					pending.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(250*time.Millisecond, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Inventory watcher error: %v", err)
			}
		}
	}()

	return nil
}
