// Package event implements the one-way status notification channel.
// The core publishes typed events; dashboards and other collaborators
// subscribe. Nothing is ever read back through this path.
package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vitalyst/enrich/pkg/types"
)

const defaultBuffer = 64

// Bus fans status events out to subscribers. Publishing never blocks:
// a subscriber that falls behind loses events rather than stalling an
// orchestration call.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan types.StatusEvent
	nextID int
	closed bool
	logger *slog.Logger
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[int]chan types.StatusEvent),
		logger: logger,
	}
}

// Subscribe registers a new subscriber and returns its channel together
// with a cancel function. The channel is closed on cancel or bus close.
func (b *Bus) Subscribe() (<-chan types.StatusEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan types.StatusEvent)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan types.StatusEvent, defaultBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber that has buffer space.
func (b *Bus) Publish(eventType types.StatusEventType, data map[string]any) {
	ev := types.StatusEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("status event dropped", "type", eventType)
		}
	}
}

// Close closes all subscriber channels. Further publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
