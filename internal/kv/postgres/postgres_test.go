package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/diamondinv/internal/kv"
)

// openTestStore connects to DIAMONDINV_TEST_POSTGRES_DSN or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DIAMONDINV_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DIAMONDINV_TEST_POSTGRES_DSN not set")
	}
	channel := fmt.Sprintf("diamondinv_test_%d", time.Now().UnixNano())
	s, err := New(context.Background(), dsn, channel, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), "", "", nil)
	assert.Error(t, err)
}

func TestPostgresStoreSetGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = s.Delete(context.Background(), key) })

	require.NoError(t, s.Set(ctx, key, []byte(`{"version":0}`)))
	v, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"version":0}`, string(v))

	require.NoError(t, s.Delete(ctx, key))
	_, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresStoreNotify(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []kv.Change
	require.NoError(t, s.Listen(ctx, func(c kv.Change) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
	}))

	require.NoError(t, s.Publish(ctx, kv.Change{Key: "k", Source: "tab-a"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].Source == "tab-a"
	}, 5*time.Second, 20*time.Millisecond)
}
