// Package daemon watches the served root for changes made behind the
// server's back.
package daemon

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// EventRecorder receives one call per observed event.
type EventRecorder interface {
	RootEvent(op string)
}

// Watcher logs filesystem events under root. It watches root and its
// first-level subdirectories, and starts watching directories created
// directly under root.
type Watcher struct {
	root     string
	recorder EventRecorder
	watcher  *fsnotify.Watcher
	// Events, when set, receives each event after it was logged
	Events chan<- fsnotify.Event
}

func NewWatcher(root string, recorder EventRecorder) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		recorder: recorder,
		watcher:  watcher,
	}
	if err := w.add(root); err != nil {
		watcher.Close()
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.add(filepath.Join(root, e.Name())); err != nil {
				log.Printf("[watch]: cannot watch %s: %v", e.Name(), err)
			}
		}
	}
	return w, nil
}

func (w *Watcher) add(dir string) error {
	return w.watcher.Add(dir)
}

// Run delivers events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	log.Println("[watch]: listening for changes in:", w.root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Println("[watch]: error:", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		rel = event.Name
	}
	log.Printf("[watch]: %s %s", event.Op, rel)

	for _, op := range strings.Split(event.Op.String(), "|") {
		if w.recorder != nil {
			w.recorder.RootEvent(op)
		}
	}

	// only one level below root is watched
	if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == w.root {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.add(event.Name); err != nil {
				log.Printf("[watch]: cannot watch %s: %v", rel, err)
			}
		}
	}

	if w.Events != nil {
		select {
		case w.Events <- event:
		case <-ctx.Done():
		}
	}
}
