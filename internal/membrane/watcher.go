package membrane

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// BlocklistWatcher hot-reloads a detector's pattern file when it changes on
// disk. The injection list is adversarial by nature and gets updated far more
// often than the binary ships, so operators edit the file and the membrane
// picks it up live.
type BlocklistWatcher struct {
	detector *BlocklistDetector
	path     string
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	debounce time.Duration
	done     chan struct{}
}

// WatchBlocklist loads path into the detector, then watches it for changes.
// Call Close to stop. The initial load is mandatory; reload failures after
// that are logged and the previous patterns stay active.
func WatchBlocklist(detector *BlocklistDetector, path string, logger *zap.Logger) (*BlocklistWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := detector.LoadBlocklist(path); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors replace files on save and
	// a file-level watch dies with the old inode.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &BlocklistWatcher{
		detector: detector,
		path:     path,
		logger:   logger,
		watcher:  fw,
		debounce: 200 * time.Millisecond,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *BlocklistWatcher) run() {
	defer close(w.done)

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Debounce rapid saves.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			if err := w.detector.LoadBlocklist(w.path); err != nil {
				w.logger.Warn("blocklist reload failed, keeping previous patterns",
					zap.String("path", w.path),
					zap.Error(err))
				continue
			}
			w.logger.Info("blocklist reloaded",
				zap.String("path", w.path),
				zap.Int("patterns", len(w.detector.Patterns())))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("blocklist watcher error", zap.Error(err))
		}
	}
}

// Close stops the watcher and waits for the reload goroutine to exit.
func (w *BlocklistWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

// WatchBlocklistContext ties the watcher lifetime to ctx.
func WatchBlocklistContext(ctx context.Context, detector *BlocklistDetector, path string, logger *zap.Logger) (*BlocklistWatcher, error) {
	w, err := WatchBlocklist(detector, path, logger)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = w.Close()
	}()
	return w, nil
}
