package lsp

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a Watcher waits after the last change to a
// file before reporting it. Editors often save in several steps.
const DefaultSettle = 100 * time.Millisecond

// Watcher calls a function whenever a single file is written, created or
// renamed into place.
type Watcher struct {
	path     string
	onChange func()
	settle   time.Duration
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	done     sync.WaitGroup
	stopOnce sync.Once
}

// NewWatcher prepares a watcher for the file at path. The containing
// directory is watched so that replacing the file is noticed too.
func NewWatcher(path string, onChange func()) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return &Watcher{
		path:     abs,
		onChange: onChange,
		settle:   DefaultSettle,
		watcher:  fw,
		stopCh:   make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() {
	w.done.Add(1)
	go w.run()
}

// Stop ends watching and waits for a pending callback to return.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		w.done.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.done.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			log.Debugf("%s: %s", event.Op, event.Name)
			if timer == nil {
				timer = time.NewTimer(w.settle)
			} else {
				timer.Reset(w.settle)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.onChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warningf("watch %s: %s", w.path, err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
