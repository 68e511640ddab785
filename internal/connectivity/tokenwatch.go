package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/hum-tech/tsoam/internal/domain"
)

// TokenWatcher decorates another observer and emits Resumed whenever the
// auth-token file is written, the headless analogue of a returning user.
type TokenWatcher struct {
	inner  domain.ConnectivityObserver
	path   string
	logger *slog.Logger
}

// NewTokenWatcher wraps inner; path is the token file to watch.
func NewTokenWatcher(inner domain.ConnectivityObserver, path string, logger *slog.Logger) *TokenWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenWatcher{inner: inner, path: filepath.Clean(path), logger: logger}
}

func (w *TokenWatcher) Online() bool { return w.inner.Online() }

// Events merges inner's events with token-file writes. If the watch cannot
// be established only inner's events are forwarded.
func (w *TokenWatcher) Events(ctx context.Context) <-chan domain.ConnectivityEvent {
	out := make(chan domain.ConnectivityEvent, eventBuffer)
	innerEvents := w.inner.Events(ctx)

	watcher, err := w.watch()
	if err != nil {
		w.logger.Warn("token watch disabled", "path", w.path, "error", err)
	}

	go func() {
		defer close(out)
		var fsEvents <-chan fsnotify.Event
		var fsErrors <-chan error
		if watcher != nil {
			defer watcher.Close()
			fsEvents = watcher.Events
			fsErrors = watcher.Errors
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-innerEvents:
				if !ok {
					return
				}
				w.send(ctx, out, ev)
			case ev, ok := <-fsEvents:
				if !ok {
					fsEvents = nil
					continue
				}
				if filepath.Clean(ev.Name) != w.path {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					w.logger.Debug("token file changed", "path", w.path, "op", ev.Op.String())
					w.send(ctx, out, domain.ConnectivityEvent{Kind: domain.EventResumed})
				}
			case err, ok := <-fsErrors:
				if !ok {
					fsErrors = nil
					continue
				}
				w.logger.Warn("token watch error", "error", err)
			}
		}
	}()
	return out
}

// watch observes the parent directory so editors that replace the file
// by rename are still seen.
func (w *TokenWatcher) watch() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	return watcher, nil
}

func (w *TokenWatcher) send(ctx context.Context, out chan<- domain.ConnectivityEvent, ev domain.ConnectivityEvent) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
