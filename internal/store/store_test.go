package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetItem_Missing(t *testing.T) {
	s := setupTestStore(t)

	value, ok, err := s.GetItem(context.Background(), KeyTokenExpireInfo)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestSetItem_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetItem(ctx, KeyTokenExpireInfo, "1700000000000"))
	require.NoError(t, s.SetItem(ctx, KeyTokenExpireInfo, "1700000900000"))

	value, ok, err := s.GetItem(ctx, KeyTokenExpireInfo)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1700000900000", value)
}

func TestDeleteItem(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetItem(ctx, "k", "v"))
	require.NoError(t, s.DeleteItem(ctx, "k"))
	require.NoError(t, s.DeleteItem(ctx, "never-set"))

	_, ok, err := s.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanceledContext(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.GetItem(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.SetItem(ctx, "k", "v"), context.Canceled)
}

func TestDeviceID_StableAndConcurrent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.DeviceID(ctx)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	first := ids[0]
	_, err := uuid.Parse(first)
	require.NoError(t, err)
	for _, id := range ids {
		assert.Equal(t, first, id)
	}
}

func TestNew_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()

	s, err := New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.SetItem(ctx, KeyTokenExpireInfo, "42"))
	require.NoError(t, s.Close())

	s, err = New(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	value, ok, err := s.GetItem(ctx, KeyTokenExpireInfo)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", value)
}
