package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, s Store, asyncNotify bool) {
	t.Helper()
	ctx := context.Background()

	var mu sync.Mutex
	var seen []map[string]json.RawMessage
	cancel := s.OnChange(func(changes map[string]json.RawMessage) {
		mu.Lock()
		seen = append(seen, changes)
		mu.Unlock()
	})
	defer cancel()
	if asyncNotify {
		// give the subscription time to attach
		time.Sleep(100 * time.Millisecond)
	}

	empty, err := s.Get(ctx, KeyProcessedHashes)
	require.NoError(t, err)
	assert.Empty(t, empty)

	err = s.Set(ctx, map[string]any{
		KeyProcessedHashes: []string{"h1", "h2"},
		KeyChatModel:       "gpt-5-nano",
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, KeyProcessedHashes, KeyChatModel, KeyImageMeta)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.JSONEq(t, `["h1","h2"]`, string(got[KeyProcessedHashes]))

	hashes, ok, err := GetJSON[[]string](ctx, s, KeyProcessedHashes)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"h1", "h2"}, hashes)

	_, ok, err = GetJSON[bool](ctx, s, KeyContextEnabled)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, map[string]any{KeyChatModel: "gpt-4o"}))
	model, _, err := GetJSON[string](ctx, s, KeyChatModel)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Contains(t, seen[0], KeyProcessedHashes)
	assert.JSONEq(t, `"gpt-4o"`, string(seen[1][KeyChatModel]))
	mu.Unlock()
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s, false)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "data", "transhot.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s, false)
}

func TestSQLiteStorePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "transhot.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, map[string]any{KeyTranslationContexts: map[string]string{"h": "ctx"}}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := GetJSON[map[string]string](ctx, s, KeyTranslationContexts)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ctx", got["h"])
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	s, err := NewRedisStore(context.Background(), RedisConfig{Addr: addr, Prefix: "transhot-test:" + uuid.NewString() + ":"})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s, true)
}

func TestOnChangeCancel(t *testing.T) {
	s := NewMemoryStore()
	calls := 0
	cancel := s.OnChange(func(map[string]json.RawMessage) { calls++ })

	require.NoError(t, s.Set(context.Background(), map[string]any{"a": 1}))
	cancel()
	cancel()
	require.NoError(t, s.Set(context.Background(), map[string]any{"a": 2}))

	assert.Equal(t, 1, calls)
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), map[string]any{"a": 1}), ErrClosed)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "etcd"})
	assert.Error(t, err)

	s, err := Open(context.Background(), Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
