package tui

import "github.com/hum-tech/tsoam/internal/domain"

// ChannelObserver forwards sync progress to a Bubble Tea program.
// Intermediate events are dropped when the channel is full; the final
// event of a cycle replaces the oldest queued one instead.
type ChannelObserver struct {
	ch chan domain.SyncProgress
}

// NewChannelObserver wraps ch, which should be buffered.
func NewChannelObserver(ch chan domain.SyncProgress) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

func (o *ChannelObserver) OnProgress(p domain.SyncProgress) {
	select {
	case o.ch <- p:
		return
	default:
	}
	if !p.Done() {
		return
	}

	// Evict the oldest queued event
	select {
	case <-o.ch:
	default:
	}
	select {
	case o.ch <- p:
	default:
	}
}
