package store

import (
	"context"
	"sync"
	"time"
)

// notifier coalesces change notifications per entity kind. Triggers for
// a kind within the quiet window collapse into one flush call carrying
// that kind, so a burst of filesystem events (e.g. a bulk git checkout)
// produces a single notification per affected collection. The notifier
// stops scheduling and firing once ctx is cancelled.
type notifier struct {
	ctx    context.Context
	window time.Duration
	flush  func(ChangeType)

	mu      sync.Mutex
	pending map[ChangeType]*time.Timer
	gen     map[ChangeType]uint64 // invalidates stale timer fires per kind
}

func newNotifier(ctx context.Context, window time.Duration, flush func(ChangeType)) *notifier {
	return &notifier{
		ctx:     ctx,
		window:  window,
		flush:   flush,
		pending: make(map[ChangeType]*time.Timer),
		gen:     make(map[ChangeType]uint64),
	}
}

// Trigger schedules a flush for kind after the quiet window. Repeated
// triggers for the same kind reset its timer; other kinds are
// unaffected.
func (n *notifier) Trigger(kind ChangeType) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ctx.Err() != nil {
		return
	}
	if t := n.pending[kind]; t != nil {
		t.Stop()
	}
	n.gen[kind]++
	gen := n.gen[kind]

	n.pending[kind] = time.AfterFunc(n.window, func() {
		n.mu.Lock()
		if n.gen[kind] != gen || n.ctx.Err() != nil {
			n.mu.Unlock()
			return
		}
		delete(n.pending, kind)
		// Flush runs unlocked: it re-reads from disk and may retrigger.
		n.mu.Unlock()

		n.flush(kind)
	})
}

// Stop cancels every pending flush. Trigger becomes a no-op once the
// notifier's context is cancelled, so Stop is terminal in practice.
func (n *notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for kind, t := range n.pending {
		t.Stop()
		delete(n.pending, kind)
	}
}
