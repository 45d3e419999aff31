package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hellobot-orchestrator/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, 30*time.Minute), mr
}

// ==========================
// Load / Save Tests
// ==========================

func TestStore_LoadMissingIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Load(context.Background(), "c-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestStore_LoadExpiredRecordIsNotFound(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, models.NewConversation("c-1")))
	mr.FastForward(31 * time.Minute)

	_, err := store.Load(ctx, "c-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveThenLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	conv := models.NewConversation("c-1")
	conv.Append(models.RoleUser, "where is my order ORD-9?")
	conv.Append(models.RoleAssistant, "let me check")
	conv.Slots["order_id"] = "ORD-9"
	conv.ActiveIntent = "get_order_status"
	conv.Status = models.StatusAwaitingSlot
	conv.PendingSlot = "order_id"

	require.NoError(t, store.Save(ctx, conv))

	loaded, err := store.Load(ctx, "c-1")
	require.NoError(t, err)

	assert.Equal(t, conv.ID, loaded.ID)
	assert.Len(t, loaded.Turns, 2)
	assert.Equal(t, "ORD-9", loaded.Slots["order_id"])
	assert.Equal(t, "get_order_status", loaded.ActiveIntent)
	assert.Equal(t, models.StatusAwaitingSlot, loaded.Status)
	assert.Equal(t, "order_id", loaded.PendingSlot)
	assert.False(t, loaded.LastUpdated.IsZero())
}

func TestStore_SaveAppliesTTL(t *testing.T) {
	store, mr := newTestStore(t)

	conv := models.NewConversation("c-1")
	require.NoError(t, store.Save(context.Background(), conv))

	ttl := mr.TTL("conv:c-1")
	assert.Equal(t, 30*time.Minute, ttl)
}

func TestStore_SaveIsAtomicReplace(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	conv := models.NewConversation("c-1")
	conv.Append(models.RoleUser, "first")
	require.NoError(t, store.Save(ctx, conv))

	conv.Append(models.RoleAssistant, "second")
	conv.Status = models.StatusComplete
	require.NoError(t, store.Save(ctx, conv))

	loaded, err := store.Load(ctx, "c-1")
	require.NoError(t, err)
	assert.Len(t, loaded.Turns, 2)
	assert.Equal(t, models.StatusComplete, loaded.Status)
}

func TestStore_Exists(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Save(ctx, models.NewConversation("c-1")))

	exists, err = store.Exists(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

// ==========================
// Failure Mode Tests
// ==========================

func TestStore_LoadStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(client, 0)

	mr.SetError("connection refused")

	_, err := store.Load(context.Background(), "c-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestStore_SaveStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(client, 0)

	mr.SetError("connection refused")

	err := store.Save(context.Background(), models.NewConversation("c-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestStore_LoadCorruptRecord(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Set("conv:c-1", "{not json")

	_, err := store.Load(context.Background(), "c-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestStore_LoadMissingKeyViaMock(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewStore(client, 0)

	mock.ExpectGet("conv:c-9").RedisNil()

	_, err := store.Load(context.Background(), "c-9")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
