package service

import (
	"sync"

	"github.com/hum-tech/tsoam/internal/domain"
)

type observerEntry struct {
	id  uint64
	obs domain.SyncObserver
}

// observerRegistry fans progress out to subscribers in registration order.
type observerRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	entries []observerEntry
}

func newObserverRegistry() *observerRegistry {
	return &observerRegistry{}
}

func (r *observerRegistry) subscribe(obs domain.SyncObserver) func() {
	if obs == nil {
		return func() {}
	}
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, observerEntry{id: id, obs: obs})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *observerRegistry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// notify calls every observer synchronously outside the lock,
// so observers may unsubscribe from within OnProgress.
func (r *observerRegistry) notify(p domain.SyncProgress) {
	r.mu.Lock()
	snapshot := make([]domain.SyncObserver, len(r.entries))
	for i, e := range r.entries {
		snapshot[i] = e.obs
	}
	r.mu.Unlock()

	for _, obs := range snapshot {
		obs.OnProgress(p)
	}
}

func (r *observerRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
