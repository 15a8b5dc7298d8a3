package presence

import (
	"context"
	"sync"
)

// Broadcaster fans snapshots out to in-process listeners such as the live-map
// stream. Each listener holds only the newest snapshot; slow readers skip
// intermediate ones.
type Broadcaster struct {
	mu        sync.Mutex
	listeners map[chan Snapshot]struct{}
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[chan Snapshot]struct{})}
}

// Name implements Sink.
func (b *Broadcaster) Name() string { return "broadcast" }

// Listen registers a listener. The returned cancel func unregisters and closes it.
func (b *Broadcaster) Listen() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	b.mu.Lock()
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish implements Sink.
func (b *Broadcaster) Publish(_ context.Context, snap Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.listeners {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	return nil
}
