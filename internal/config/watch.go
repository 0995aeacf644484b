package config

import (
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ehrlich-b/scriptbot/internal/logger"
)

// Watcher watches a Config's script Source files and calls onChange
// (debounced) whenever one is written. The caller is responsible for
// re-parsing and atomically swapping in the new StateGraph — this
// type only detects the change.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// WatchSources starts watching every file in sources, invoking
// onChange after each burst of writes settles for 200ms. Stop the
// returned Watcher to release the underlying fsnotify handle.
func WatchSources(sources []string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, path := range sources {
		if err := fsw.Add(path); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	w := &Watcher{fsw: fsw}
	go w.run(onChange)
	return w, nil
}

func (w *Watcher) run(onChange func()) {
	var debounce *time.Timer
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, onChange)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Error("config: script watcher error", "err", err)
		}
	}
}

func (w *Watcher) Stop() error {
	return w.fsw.Close()
}
