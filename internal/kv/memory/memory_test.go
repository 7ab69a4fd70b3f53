package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/diamondinv/internal/kv"
)

func TestMemoryStoreSetGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"a":1}`)))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(v))

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := New()
	ctx := context.Background()

	in := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", in))
	in[0] = 'x'

	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func TestMemoryStorePublishReachesListeners(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []kv.Change
	require.NoError(t, s.Listen(ctx, func(c kv.Change) { got = append(got, c) }))

	require.NoError(t, s.Publish(ctx, kv.Change{Key: "k", Source: "tab-1"}))
	require.Len(t, got, 1)
	assert.Equal(t, "k", got[0].Key)
	assert.Equal(t, "tab-1", got[0].Source)
}
