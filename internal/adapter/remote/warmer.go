package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hum-tech/tsoam/internal/domain"
)

// CacheSink receives fetched entities; the offline service satisfies it.
type CacheSink interface {
	StoreOfflineData(ctx context.Context, module, key string, payload json.RawMessage) error
}

// Warmer implements domain.CacheWorker by pulling each module's list
// endpoint into the offline cache.
type Warmer struct {
	client   *Client
	registry *domain.ModuleRegistry
	logger   *slog.Logger

	mu   sync.RWMutex
	sink CacheSink
}

// NewWarmer creates a warmer. It does nothing until SetSink is called.
func NewWarmer(client *Client, registry *domain.ModuleRegistry, logger *slog.Logger) *Warmer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Warmer{client: client, registry: registry, logger: logger}
}

// SetSink wires the cache the warmer writes into
func (w *Warmer) SetSink(sink CacheSink) {
	w.mu.Lock()
	w.sink = sink
	w.mu.Unlock()
}

// Warm fetches every module and caches items that carry an id.
// Failures are collected per module; one bad module does not stop the rest.
func (w *Warmer) Warm(ctx context.Context, modules []string) error {
	w.mu.RLock()
	sink := w.sink
	w.mu.RUnlock()
	if sink == nil {
		return nil
	}

	var errs []error
	for _, module := range modules {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.warmModule(ctx, sink, module)
		if err != nil {
			errs = append(errs, fmt.Errorf("warm %s: %w", module, err))
			continue
		}
		w.logger.Debug("warmed module cache", "module", module, "records", n)
	}
	return errors.Join(errs...)
}

func (w *Warmer) warmModule(ctx context.Context, sink CacheSink, module string) (int, error) {
	endpoint, err := w.registry.Endpoint(module)
	if err != nil {
		return 0, err
	}
	items, err := w.client.List(ctx, endpoint)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, item := range items {
		id, ok := domain.EntityID(item)
		if !ok {
			continue
		}
		if err := sink.StoreOfflineData(ctx, module, id, item); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}
