package watch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileChangeSink receives push notifications about watched files. The
// bridge session implements this; the boolean mirrors the two-channel
// split so the sink does not need to know filenames.
type FileChangeSink interface {
	NotifyFileChanged(filename string, isProfile bool)
}

// Notifier forwards OS-level filesystem events for the bridge directory
// into a FileChangeSink. It is an optional accelerant: the polling
// Detector remains the source of truth, so a missed event only costs
// one poll interval of latency.
type Notifier struct {
	logger       *zap.Logger
	dir          string
	profileNames map[string]bool
	watchedNames map[string]bool
	sink         FileChangeSink
}

// NewNotifier builds a notifier for the given directory. stateFiles and
// profileFiles are bare filenames; events for anything else in the
// directory are ignored.
func NewNotifier(logger *zap.Logger, dir string, stateFiles, profileFiles []string, sink FileChangeSink) *Notifier {
	n := &Notifier{
		logger:       logger.Named("notifier"),
		dir:          dir,
		profileNames: make(map[string]bool, len(profileFiles)),
		watchedNames: make(map[string]bool, len(stateFiles)+len(profileFiles)),
		sink:         sink,
	}
	for _, f := range stateFiles {
		n.watchedNames[f] = true
	}
	for _, f := range profileFiles {
		n.watchedNames[f] = true
		n.profileNames[f] = true
	}
	return n
}

// Run watches the bridge directory until the context is cancelled.
// Watch registration failure is returned immediately; per-event errors
// are logged and the loop continues.
func (n *Notifier) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(n.dir); err != nil {
		return fmt.Errorf("failed to watch bridge directory %s: %w", n.dir, err)
	}
	n.logger.Info("Watching bridge directory", zap.String("dir", n.dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(event.Name)
			if !n.watchedNames[name] {
				continue
			}
			n.logger.Debug("Filesystem event", zap.String("file", name), zap.String("op", event.Op.String()))
			n.sink.NotifyFileChanged(name, n.profileNames[name])

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			n.logger.Warn("Filesystem watcher error", zap.Error(err))
		}
	}
}
