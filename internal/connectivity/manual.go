// Package connectivity provides domain.ConnectivityObserver implementations.
package connectivity

import (
	"context"
	"sync"

	"github.com/hum-tech/tsoam/internal/domain"
)

const eventBuffer = 16

// broadcaster fans events out to every Events subscriber.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan domain.ConnectivityEvent]struct{}
}

func (b *broadcaster) subscribe(ctx context.Context) <-chan domain.ConnectivityEvent {
	ch := make(chan domain.ConnectivityEvent, eventBuffer)
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[chan domain.ConnectivityEvent]struct{})
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}

// publish never blocks; a subscriber that falls behind loses events.
func (b *broadcaster) publish(ev domain.ConnectivityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Manual is a ConnectivityObserver flipped by code.
type Manual struct {
	mu     sync.Mutex
	online bool
	bus    broadcaster
}

// NewManual starts in the given state.
func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Manual) Events(ctx context.Context) <-chan domain.ConnectivityEvent {
	return m.bus.subscribe(ctx)
}

// SetOnline publishes a transition when the state changes.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}
	kind := domain.EventOffline
	if online {
		kind = domain.EventOnline
	}
	m.bus.publish(domain.ConnectivityEvent{Kind: kind})
}

// Resume publishes a Resumed event.
func (m *Manual) Resume() {
	m.bus.publish(domain.ConnectivityEvent{Kind: domain.EventResumed})
}
