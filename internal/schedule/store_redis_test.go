package schedule

import (
	"context"
	"encoding/json"
	"testing"

	"game-bridge/internal/config"
	"game-bridge/internal/db/redis_tools"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "bridge:test:scheduled"

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis_tools.Open(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(redis_tools.NewRedisDao(client), testKey), mr
}

func hashFields(t *testing.T, mr *miniredis.Miniredis) []string {
	t.Helper()
	fields, err := mr.HKeys(testKey)
	require.NoError(t, err)
	return fields
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	q := NewQueue(store, &recordingExecutor{})
	_, err := q.Enqueue("say hi", t0, 0)
	require.NoError(t, err)
	_, err = q.Enqueue("say later", t0.Add(1), 0)
	require.NoError(t, err)
	assert.Len(t, hashFields(t, mr), 2)

	fresh := NewQueue(store, &recordingExecutor{})
	require.NoError(t, fresh.Load(ctx))
	pending := fresh.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "say hi", pending[0].Command)
	assert.True(t, pending[0].DueAt.Equal(t0))
	assert.Equal(t, "say later", pending[1].Command)
}

func TestRedisStoreSaveReplacesWholeSet(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	mr.HSet(testKey, "stale", `{"id":"stale","command":"old"}`)
	require.NoError(t, store.Save(ctx, []Command{{ID: "a", Command: "say a", DueAt: t0}}))
	assert.Equal(t, []string{"a"}, hashFields(t, mr))

	require.NoError(t, store.Save(ctx, nil))
	assert.False(t, mr.Exists(testKey), "an empty set deletes the hash")

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRedisStoreLoadFillsMissingID(t *testing.T) {
	store, mr := newRedisStore(t)

	raw, err := json.Marshal(Command{Command: "say hi", DueAt: t0})
	require.NoError(t, err)
	mr.HSet(testKey, "from-field", string(raw))

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "from-field", stored[0].ID)
	assert.Equal(t, "say hi", stored[0].Command)
}

func TestRedisStoreLoadRejectsCorruptEntry(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.HSet(testKey, "bad", "{")

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestRedisStoreTickRemovesExecuted(t *testing.T) {
	store, mr := newRedisStore(t)

	q := NewQueue(store, &recordingExecutor{})
	_, err := q.Enqueue("say hi", t0, 0)
	require.NoError(t, err)

	q.Tick(t0)
	assert.False(t, mr.Exists(testKey))
}
