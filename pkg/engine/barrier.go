package engine

import (
	"context"
	"sync"
)

// barrierSet tracks in-flight background extraction per (user, character)
// key so context assembly can wait for writes triggered by earlier turns
// of the same conversation instead of reading stale state.
type barrierSet struct {
	mu      sync.Mutex
	entries map[string]*barrierEntry
}

type barrierEntry struct {
	pending int
	done    chan struct{}
}

func newBarrierSet() *barrierSet {
	return &barrierSet{entries: make(map[string]*barrierEntry)}
}

func (b *barrierSet) Enter(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := b.entries[key]
	if entry == nil {
		entry = &barrierEntry{done: make(chan struct{})}
		b.entries[key] = entry
	}
	entry.pending++
}

func (b *barrierSet) Leave(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := b.entries[key]
	if entry == nil {
		return
	}
	entry.pending--
	if entry.pending <= 0 {
		close(entry.done)
		delete(b.entries, key)
	}
}

// Wait blocks until work pending at call time has finished, or ctx ends.
// Work entering after the snapshot is not waited for.
func (b *barrierSet) Wait(ctx context.Context, key string) error {
	b.mu.Lock()
	entry := b.entries[key]
	b.mu.Unlock()
	if entry == nil {
		return nil
	}
	select {
	case <-entry.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
