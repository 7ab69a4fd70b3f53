package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/diamondinv/internal/db"
	"github.com/vbonduro/diamondinv/internal/kv"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestSQLiteStoreSetGet(t *testing.T) {
	s := New(openTestDB(t), 0, nil)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"version":0}`)))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"version":0}`, string(v))
}

func TestSQLiteStoreOverwrite(t *testing.T) {
	s := New(openTestDB(t), 0, nil)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("1")))
	require.NoError(t, s.Set(ctx, "k", []byte("2")))

	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))
}

func TestSQLiteStoreDelete(t *testing.T) {
	s := New(openTestDB(t), 0, nil)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("1")))
	require.NoError(t, s.Delete(ctx, "k"))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStoreChangesSince(t *testing.T) {
	s := New(openTestDB(t), 0, nil)
	ctx := context.Background()

	start, err := s.latestSeq(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Publish(ctx, kv.Change{Key: "a", Source: "one"}))
	require.NoError(t, s.Publish(ctx, kv.Change{Key: "b", Source: "two"}))

	changes, last, err := s.changesSince(ctx, start)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "a", changes[0].Key)
	assert.Equal(t, "two", changes[1].Source)

	changes, _, err = s.changesSince(ctx, last)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

// Two handles on one database file stand in for two processes.
func TestSQLiteStoreListenAcrossConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	dbA, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbA.Close() })
	dbB, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbB.Close() })

	writer := New(dbA, 10*time.Millisecond, nil)
	reader := New(dbB, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []kv.Change
	require.NoError(t, reader.Listen(ctx, func(c kv.Change) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
	}))

	require.NoError(t, writer.Publish(ctx, kv.Change{Key: "diamond-management-store", Source: "tab-a"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].Source == "tab-a"
	}, 2*time.Second, 10*time.Millisecond)
}
