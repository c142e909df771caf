package services

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Pinger probes the remote endpoint; a nil error means reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NetWatcher derives the online/offline signal from periodic probes of the
// sync endpoint and fires change hooks on transitions. It satisfies
// Connectivity for the lifecycle and sync engines.
type NetWatcher struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration

	online atomic.Bool

	mu       sync.Mutex
	onChange []func(online bool)
}

func NewNetWatcher(p Pinger, interval, timeout time.Duration) *NetWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NetWatcher{pinger: p, interval: interval, timeout: timeout}
}

func (w *NetWatcher) Online() bool { return w.online.Load() }

// OnChange registers a transition hook. Hooks run on the watcher goroutine;
// keep them short or hand off.
func (w *NetWatcher) OnChange(fn func(online bool)) {
	w.mu.Lock()
	w.onChange = append(w.onChange, fn)
	w.mu.Unlock()
}

// SetOnline flips the signal and fires hooks on an actual transition. The
// probe loop uses it; tests and a manual toggle can too.
func (w *NetWatcher) SetOnline(online bool) {
	if w.online.Swap(online) == online {
		return
	}
	if online {
		log.Println("netwatch: connectivity restored")
	} else {
		log.Println("netwatch: connectivity lost")
	}
	w.mu.Lock()
	hooks := make([]func(bool), len(w.onChange))
	copy(hooks, w.onChange)
	w.mu.Unlock()
	for _, fn := range hooks {
		fn(online)
	}
}

func (w *NetWatcher) Run(ctx context.Context) {
	w.probe(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.probe(ctx)
		}
	}
}

func (w *NetWatcher) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	w.SetOnline(w.pinger.Ping(pctx) == nil)
}
