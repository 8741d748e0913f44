// Package notify fans held-bill changes out to every reader of a store, so
// terminals can refresh their held list when another terminal parks or
// resumes a bill.
package notify

import (
	"context"
	"sync"

	"billease/backend/internal/domain"
)

type Bus interface {
	Publish(ctx context.Context, event domain.HeldBillEvent) error
	// Subscribe delivers events for storeID until ctx ends or cancel is
	// called. The channel is closed afterwards.
	Subscribe(ctx context.Context, storeID string) (<-chan domain.HeldBillEvent, func(), error)
}

const subscriberBuffer = 16

// MemoryBus delivers events within one process. Slow subscribers drop events
// instead of blocking publishers.
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan domain.HeldBillEvent
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]chan domain.HeldBillEvent)}
}

func (b *MemoryBus) Publish(_ context.Context, event domain.HeldBillEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[event.StoreID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, storeID string) (<-chan domain.HeldBillEvent, func(), error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	ch := make(chan domain.HeldBillEvent, subscriberBuffer)
	if b.subs[storeID] == nil {
		b.subs[storeID] = make(map[int]chan domain.HeldBillEvent)
	}
	b.subs[storeID][id] = ch
	b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-subCtx.Done()
		b.mu.Lock()
		delete(b.subs[storeID], id)
		if len(b.subs[storeID]) == 0 {
			delete(b.subs, storeID)
		}
		close(ch)
		b.mu.Unlock()
	}()
	return ch, cancel, nil
}

// NoopBus drops every event.
type NoopBus struct{}

func (NoopBus) Publish(_ context.Context, _ domain.HeldBillEvent) error { return nil }

func (NoopBus) Subscribe(ctx context.Context, _ string) (<-chan domain.HeldBillEvent, func(), error) {
	ch := make(chan domain.HeldBillEvent)
	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-subCtx.Done()
		close(ch)
	}()
	return ch, cancel, nil
}
