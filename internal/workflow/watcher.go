package workflow

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads workflow definitions when files in a directory change.
// Reloads are debounced because editors fire several events per save.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	updates chan *Definition
	done    chan struct{}
}

// Watch starts watching a directory for workflow file changes. Successfully
// reloaded definitions arrive on Updates; parse failures are logged and
// skipped so a half-saved file cannot kill the watcher.
func Watch(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		dir:     dir,
		watcher: fsw,
		updates: make(chan *Definition, 16),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Updates returns the channel of reloaded definitions.
func (w *Watcher) Updates() <-chan *Definition {
	return w.updates
}

// Close stops the watcher and closes the updates channel.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

// loop drains fsnotify events, debouncing per path.
func (w *Watcher) loop() {
	defer close(w.updates)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[workflow] watch error: %v", err)

		case <-ticker.C:
			now := time.Now()
			for path, at := range pending {
				if now.Sub(at) < 200*time.Millisecond {
					continue
				}
				delete(pending, path)

				def, err := Load(path)
				if err != nil {
					log.Printf("[workflow] reload %s: %v", path, err)
					continue
				}
				select {
				case w.updates <- def:
				case <-w.done:
					return
				}
			}
		}
	}
}
