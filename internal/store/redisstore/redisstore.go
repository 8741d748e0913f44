// Package redisstore keeps held bills in Redis so every terminal of a store
// sees the same parked drafts.
//
// Layout, for prefix p:
//
//	p:held:<id>                        JSON encoded domain.HeldBill
//	p:held:draft:<draftID>             id of the bill holding that draft
//	p:held:idx:<store>                 zset of ids scored by heldAt (µs)
//	p:held:idx:<store>:<terminal>      same, per terminal
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"billease/backend/internal/domain"
	"billease/backend/internal/store"
	"billease/backend/internal/xid"
)

const maxTxAttempts = 5

type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ store.HeldBillStore = (*Store)(nil)

func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "billease"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) billKey(id string) string {
	return fmt.Sprintf("%s:held:%s", s.prefix, id)
}

func (s *Store) draftKey(draftID string) string {
	return fmt.Sprintf("%s:held:draft:%s", s.prefix, draftID)
}

func (s *Store) indexKey(storeID, terminalID string) string {
	if terminalID == "" {
		return fmt.Sprintf("%s:held:idx:%s", s.prefix, storeID)
	}
	return fmt.Sprintf("%s:held:idx:%s:%s", s.prefix, storeID, terminalID)
}

func (s *Store) CreateHeldBill(ctx context.Context, held domain.HeldBill) (*domain.HeldBill, error) {
	if held.StoreID == "" || held.TerminalID == "" || held.Draft.ID == "" || len(held.Draft.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if held.ID == "" {
		held.ID = xid.New("held")
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}
	held.Revision = 1

	payload, err := json.Marshal(held)
	if err != nil {
		return nil, fmt.Errorf("marshal held bill: %w", err)
	}
	draftKey := s.draftKey(held.Draft.ID)

	var result *domain.HeldBill
	err = s.retry(ctx, func(ctx context.Context) error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			existingID, err := tx.Get(ctx, draftKey).Result()
			switch {
			case err == nil:
				existing, loadErr := s.load(ctx, tx, existingID)
				if loadErr == nil {
					result = existing
					return nil
				}
				if !errors.Is(loadErr, store.ErrNotFound) {
					return loadErr
				}
			case !errors.Is(err, redis.Nil):
				return err
			}

			score := float64(held.HeldAt.UnixMicro())
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.billKey(held.ID), payload, 0)
				pipe.Set(ctx, draftKey, held.ID, 0)
				pipe.ZAdd(ctx, s.indexKey(held.StoreID, ""), redis.Z{Score: score, Member: held.ID})
				pipe.ZAdd(ctx, s.indexKey(held.StoreID, held.TerminalID), redis.Z{Score: score, Member: held.ID})
				return nil
			})
			if err != nil {
				return err
			}
			saved := held.Clone()
			result = &saved
			return nil
		}, draftKey)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetHeldBill(ctx context.Context, id string) (*domain.HeldBill, error) {
	return s.load(ctx, s.client, id)
}

func (s *Store) ListHeldBills(ctx context.Context, storeID string, terminalID string, limit int) ([]domain.HeldBill, error) {
	if storeID == "" {
		return nil, store.ErrInvalidInput
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(storeID, terminalID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	result := make([]domain.HeldBill, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.billKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// index entry outlived its bill
			continue
		}
		var held domain.HeldBill
		if err := json.Unmarshal([]byte(raw), &held); err != nil {
			return nil, fmt.Errorf("decode held bill: %w", err)
		}
		result = append(result, held)
	}
	return result, nil
}

func (s *Store) TakeHeldBill(ctx context.Context, id string, expectedRevision int64) (*domain.HeldBill, error) {
	var result *domain.HeldBill
	err := s.retry(ctx, func(ctx context.Context) error {
		key := s.billKey(id)
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			held, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := store.CheckRevision(held.Revision, expectedRevision); err != nil {
				return err
			}
			if err := s.remove(ctx, tx, held); err != nil {
				return err
			}
			result = held
			return nil
		}, key)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteHeldBill(ctx context.Context, id string, expectedRevision int64) error {
	return s.retry(ctx, func(ctx context.Context) error {
		key := s.billKey(id)
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			held, err := s.load(ctx, tx, id)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := store.CheckRevision(held.Revision, expectedRevision); err != nil {
				return err
			}
			return s.remove(ctx, tx, held)
		}, key)
	})
}

func (s *Store) UpdateHeldBillNote(ctx context.Context, id string, note string, expectedRevision int64) (*domain.HeldBill, error) {
	var result *domain.HeldBill
	err := s.retry(ctx, func(ctx context.Context) error {
		key := s.billKey(id)
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			held, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := store.CheckRevision(held.Revision, expectedRevision); err != nil {
				return err
			}
			held.Draft.Note = note
			held.Revision++
			payload, err := json.Marshal(held)
			if err != nil {
				return fmt.Errorf("marshal held bill: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			if err != nil {
				return err
			}
			result = held
			return nil
		}, key)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// remove queues deletion of the bill, its indexes and, when it still points
// at this bill, the draft key.
func (s *Store) remove(ctx context.Context, tx *redis.Tx, held *domain.HeldBill) error {
	draftKey := s.draftKey(held.Draft.ID)
	owner, err := tx.Get(ctx, draftKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.billKey(held.ID))
		if owner == held.ID {
			pipe.Del(ctx, draftKey)
		}
		pipe.ZRem(ctx, s.indexKey(held.StoreID, ""), held.ID)
		pipe.ZRem(ctx, s.indexKey(held.StoreID, held.TerminalID), held.ID)
		return nil
	})
	return err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) load(ctx context.Context, c getter, id string) (*domain.HeldBill, error) {
	raw, err := c.Get(ctx, s.billKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var held domain.HeldBill
	if err := json.Unmarshal(raw, &held); err != nil {
		return nil, fmt.Errorf("decode held bill %s: %w", id, err)
	}
	return &held, nil
}

// retry reruns fn while a watched key changed under it. Once attempts run
// out the caller sees ErrRevisionConflict.
func (s *Store) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := fn(ctx)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return store.ErrRevisionConflict
}
