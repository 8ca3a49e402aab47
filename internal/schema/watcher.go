package schema

import (
	"fmt"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates a loader's cached registry when the schema file
// changes on disk. Events are debounced because editors and sync jobs
// produce bursts of writes for a single logical change.
type Watcher struct {
	fw   *fsnotify.Watcher
	done chan struct{}
}

const watchDebounce = 500 * time.Millisecond

// Watch starts watching path and calls onChange (typically
// Loader.Invalidate) after each settled burst of file events.
func Watch(path string, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}

	w := &Watcher{fw: fw, done: make(chan struct{})}
	go w.loop(path, onChange)
	return w, nil
}

func (w *Watcher) loop(path string, onChange func()) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			log.Printf("schema: %s changed, invalidating registry cache", path)
			onChange()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("schema: watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
