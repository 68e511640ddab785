package connectivity

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hum-tech/tsoam/internal/domain"
)

const DefaultProbeInterval = 30 * time.Second

// Pinger checks reachability of the API. remote.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context, path string) error
}

// Prober polls the API and reports online/offline transitions.
type Prober struct {
	pinger   Pinger
	path     string
	interval time.Duration
	logger   *slog.Logger

	online atomic.Bool
	bus    broadcaster
}

// NewProber creates a prober that GETs path every interval.
func NewProber(pinger Pinger, path string, interval time.Duration, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Prober{
		pinger:   pinger,
		path:     path,
		interval: interval,
		logger:   logger,
	}
}

func (p *Prober) Online() bool { return p.online.Load() }

func (p *Prober) Events(ctx context.Context) <-chan domain.ConnectivityEvent {
	return p.bus.subscribe(ctx)
}

// Probe checks once and publishes a transition if the state changed.
func (p *Prober) Probe(ctx context.Context) bool {
	err := p.pinger.Ping(ctx, p.path)
	if ctx.Err() != nil {
		return p.Online()
	}
	online := err == nil
	if prev := p.online.Swap(online); prev != online {
		p.logger.Info("connectivity probe", "online", online, "error", err)
		kind := domain.EventOffline
		if online {
			kind = domain.EventOnline
		}
		p.bus.publish(domain.ConnectivityEvent{Kind: kind})
	}
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
