package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billease/backend/internal/store"
	"billease/backend/internal/store/storetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test"), mr
}

func TestHeldBillStore(t *testing.T) {
	storetest.RunHeldBillStoreTests(t, func(t *testing.T) store.HeldBillStore {
		s, _ := newTestStore(t)
		return s
	})
}

func TestKeysAreCleanedUpOnTake(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	held := storetest.SampleHeldBill("store-a", "term-1", time.Now())

	_, err := s.CreateHeldBill(ctx, held)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:held:"+held.ID))
	assert.True(t, mr.Exists("test:held:draft:"+held.Draft.ID))

	_, err = s.TakeHeldBill(ctx, held.ID, 0)
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:held:"+held.ID))
	assert.False(t, mr.Exists("test:held:draft:"+held.Draft.ID))

	members, err := mr.ZMembers("test:held:idx:store-a")
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestListSkipsDanglingIndexEntries(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	held := storetest.SampleHeldBill("store-a", "term-1", time.Now())
	_, err := s.CreateHeldBill(ctx, held)
	require.NoError(t, err)

	mr.Del("test:held:" + held.ID)

	list, err := s.ListHeldBills(ctx, "store-a", "", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListRequiresStore(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.ListHeldBills(context.Background(), "", "", 0)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}
