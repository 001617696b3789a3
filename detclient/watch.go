package detclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"TableDetFront/monitor"

	"go.uber.org/zap"
)

// Watcher probes /health on a ticker and remembers the last outcome.
type Watcher struct {
	client   *Client
	interval time.Duration
	healthy  atomic.Bool
	checked  atomic.Bool
	onChange func(healthy bool)
}

func NewWatcher(client *Client, interval time.Duration, onChange func(healthy bool)) *Watcher {
	return &Watcher{client: client, interval: interval, onChange: onChange}
}

// Healthy reports the last probe result and whether any probe has run yet.
func (w *Watcher) Healthy() (healthy bool, checked bool) {
	return w.healthy.Load(), w.checked.Load()
}

// Run probes once immediately and then every interval until ctx is done.
// A failing probe is logged and never stops the loop.
func (w *Watcher) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			w.client.log.Info("health watcher stopped")
			return
		case <-ticker.C:
			w.probe(ctx)
		}
	}
}

func (w *Watcher) probe(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.client.log.Error(fmt.Sprintf("health probe panic recovered: %v", r))
		}
	}()
	err := w.client.Health(ctx)
	healthy := err == nil
	if err != nil && ctx.Err() == nil {
		w.client.log.Warn("detection API unreachable", zap.String("baseURL", w.client.baseURL), zap.Error(err))
	}
	if healthy {
		monitor.UpstreamUp.Set(1)
	} else {
		monitor.UpstreamUp.Set(0)
	}
	first := !w.checked.Swap(true)
	prev := w.healthy.Swap(healthy)
	if (first || prev != healthy) && w.onChange != nil {
		if healthy {
			w.client.log.Info("detection API reachable", zap.String("baseURL", w.client.baseURL))
		}
		w.onChange(healthy)
	}
}
