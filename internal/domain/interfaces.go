package domain

import "context"

// ConnectivityEventKind distinguishes connectivity signals.
type ConnectivityEventKind int

const (
	EventOffline ConnectivityEventKind = iota
	EventOnline
	// EventResumed means the host came back to the foreground; it only
	// triggers a sync when already online
	EventResumed
)

func (k ConnectivityEventKind) String() string {
	switch k {
	case EventOnline:
		return "online"
	case EventOffline:
		return "offline"
	case EventResumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// ConnectivityEvent is one transition reported by a ConnectivityObserver.
type ConnectivityEvent struct {
	Kind ConnectivityEventKind
}

// ConnectivityObserver reports online/offline transitions.
type ConnectivityObserver interface {
	// Online returns the current best-known state
	Online() bool

	// Events streams transitions until ctx is done; the channel is then closed
	Events(ctx context.Context) <-chan ConnectivityEvent
}

// CacheWorker is an optional background cache capability.
// It is not part of the sync contract and may be a no-op.
type CacheWorker interface {
	Warm(ctx context.Context, modules []string) error
}

// NoOpCacheWorker satisfies CacheWorker without doing anything.
type NoOpCacheWorker struct{}

func (NoOpCacheWorker) Warm(context.Context, []string) error { return nil }
