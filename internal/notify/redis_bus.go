package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	redis "github.com/redis/go-redis/v9"

	"billease/backend/internal/domain"
)

// RedisBus publishes events on a Redis channel per store so terminals
// served by different API instances see each other's changes.
type RedisBus struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisBus(client redis.UniversalClient, prefix string) *RedisBus {
	if prefix == "" {
		prefix = "billease"
	}
	return &RedisBus{client: client, prefix: prefix}
}

func (b *RedisBus) channel(storeID string) string {
	return fmt.Sprintf("%s:held-events:%s", b.prefix, storeID)
}

func (b *RedisBus) Publish(ctx context.Context, event domain.HeldBillEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal held bill event: %w", err)
	}
	return b.client.Publish(ctx, b.channel(event.StoreID), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, storeID string) (<-chan domain.HeldBillEvent, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := b.client.Subscribe(subCtx, b.channel(storeID))

	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe held bill events: %w", err)
	}

	out := make(chan domain.HeldBillEvent, subscriberBuffer)
	go func() {
		defer func() {
			_ = pubsub.Close()
			close(out)
		}()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.HeldBillEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("[held-events] WARN: dropping malformed event on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}
