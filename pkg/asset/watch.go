package asset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Generation announces a newly committed snapshot of one state slot.
type Generation struct {
	Key    string
	Number int
}

// Watcher reports new state generations committed under an FS directory,
// letting a serving process pick up freshly trained models without polling.
type Watcher struct {
	events  chan Generation
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// Watch starts watching the directory. Slots created after the watch begins
// are picked up as their key directories appear.
func (f *FS) Watch(logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("asset: creating watcher: %w", err)
	}
	if err := fsw.Add(f.root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("asset: watching %s: %w", f.root, err)
	}
	entries, err := filepath.Glob(filepath.Join(f.root, "*"))
	if err == nil {
		for _, dir := range entries {
			// Pre-existing slots; Add on a file is a no-op error we skip.
			_ = fsw.Add(dir)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		events:  make(chan Generation, 16),
		watcher: fsw,
		cancel:  cancel,
	}
	go w.loop(ctx, f.root, logger)
	return w, nil
}

// Generations returns the channel of committed generations. It is closed
// when the watcher shuts down.
func (w *Watcher) Generations() <-chan Generation { return w.events }

// Close stops the watcher and closes the generations channel.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context, root string, logger *slog.Logger) {
	defer close(w.events)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == root {
				// A new state slot appeared; watch it for generations.
				if err := w.watcher.Add(event.Name); err != nil {
					logger.Warn("failed to watch new state slot", "path", event.Name, "error", err)
				}
				continue
			}
			// Generations are committed by rename, which arrives as Create.
			if !event.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, generationExt) {
				continue
			}
			number, err := strconv.Atoi(strings.TrimSuffix(name, generationExt))
			if err != nil {
				continue
			}
			generation := Generation{Key: filepath.Base(filepath.Dir(event.Name)), Number: number}
			select {
			case w.events <- generation:
			default:
				logger.Warn("dropping state generation event (slow consumer)",
					"key", generation.Key, "generation", generation.Number)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("state watcher error", "error", err)
		}
	}
}
