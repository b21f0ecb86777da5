package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/audiomark-mcp/internal/indexer"
)

// DefaultDebounce is the quiet period before a batch is delivered
const DefaultDebounce = 2 * time.Second

// Handler receives the sorted, de-duplicated paths changed during one debounce window
type Handler func(ctx context.Context, paths []string)

// Options configures a Watcher
type Options struct {
	Debounce time.Duration // default: DefaultDebounce
	Suffixes []string      // File suffixes that count as changes (default: indexer.DefaultSuffixes)
	Logger   *slog.Logger  // default: slog.Default()
}

// Watcher watches a dataset directory tree
type Watcher struct {
	root     string
	handler  Handler
	debounce time.Duration
	suffixes map[string]struct{}
	logger   *slog.Logger

	fsw  *fsnotify.Watcher
	wg   sync.WaitGroup
	mu   sync.Mutex
	stop context.CancelFunc
}

// New creates a watcher for root. Call Start to begin delivering changes.
func New(root string, handler Handler, opts *Options) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watcher: handler is required")
	}
	if opts == nil {
		opts = &Options{}
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	suffixes := opts.Suffixes
	if len(suffixes) == 0 {
		suffixes = indexer.DefaultSuffixes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", root)
	}

	return &Watcher{
		root:     root,
		handler:  handler,
		debounce: debounce,
		suffixes: indexer.NormalizeSuffixes(suffixes),
		logger:   logger.With("component", "watcher"),
	}, nil
}

// Start adds the directory tree to fsnotify and starts the event loop.
// The loop ends when ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return errors.New("watcher: already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.addTree(fsw, w.root); err != nil {
		_ = fsw.Close()
		return err
	}
	w.fsw = fsw

	ctx, cancel := context.WithCancel(ctx)
	w.stop = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx, fsw)
	}()

	w.logger.Info("watching dataset", "root", w.root, "debounce", w.debounce)
	return nil
}

// Stop ends the event loop and waits for an in-flight handler call to return.
// Pending changes that have not been delivered are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fsw, stop := w.fsw, w.stop
	w.fsw, w.stop = nil, nil
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	stop()
	w.wg.Wait()
	return fsw.Close()
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(fsw, event) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			clear(pending)

			w.logger.Debug("dataset changed", "paths", len(paths))
			w.handler(ctx, paths)
		}
	}
}

// relevant filters events down to audio files and directories.
// New directories are added to the watch list as they appear.
func (w *Watcher) relevant(fsw *fsnotify.Watcher, event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if tempFile(name) || event.Op == fsnotify.Chmod {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fsw, event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return true
		}
	}

	if _, ok := w.suffixes[strings.ToLower(filepath.Ext(name))]; ok {
		return true
	}
	// A removed or renamed directory has no suffix and can no longer be stat'ed
	return filepath.Ext(name) == "" && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename))
}

// tempFile matches the dot-prefixed temp files written by saves and exports.
// Other hidden names are watched since the scanner indexes them too.
func tempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}
