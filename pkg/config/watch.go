package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watch invokes onChange with the freshly loaded Config whenever config.toml
// changes on disk. The parent directory is watched rather than the file
// itself so editors that replace the file on save are still observed.
// The returned stop function releases the watcher; it is safe to call more
// than once.
func (c *Configer) Watch(onChange func(*Config)) (func(), error) {
	if c.targetPath == "" {
		return nil, fmt.Errorf("no config file to watch, run \"engram init\" first")
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(c.targetPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching config dir: %w", err)
	}

	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != c.targetPath {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				cfg, err := c.LoadConfig()
				if err != nil {
					// Partial writes during editor saves parse as garbage;
					// skip and wait for the next event.
					continue
				}
				onChange(cfg)

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			close(done)
			watcher.Close()
		})
	}

	return stop, nil
}
