package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestKVStorage_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	storage := NewKVStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, "gemini_api_key", "secret", "Gemini API key"))

	value, err := storage.Get(ctx, "gemini_api_key")
	require.NoError(t, err)
	assert.Equal(t, "secret", value)

	pairs, err := storage.List(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "Gemini API key", pairs[0].Description)
}

func TestKVStorage_GetNotFound(t *testing.T) {
	db := setupTestDB(t)
	storage := NewKVStorage(db, arbor.NewLogger())

	_, err := storage.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestKVStorage_TTLExpiry(t *testing.T) {
	db := setupTestDB(t)
	storage := NewKVStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// Already-expired entry reads as missing
	require.NoError(t, storage.SetWithTTL(ctx, "ctx:drewry", "cached excerpt", "", -time.Second))

	_, err := storage.Get(ctx, "ctx:drewry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	// Unexpired entry reads normally
	require.NoError(t, storage.SetWithTTL(ctx, "ctx:imaa", "cached excerpt", "", time.Hour))
	value, err := storage.Get(ctx, "ctx:imaa")
	require.NoError(t, err)
	assert.Equal(t, "cached excerpt", value)

	// List hides expired rows
	pairs, err := storage.List(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "ctx:imaa", pairs[0].Key)
}

func TestKVStorage_Delete(t *testing.T) {
	db := setupTestDB(t)
	storage := NewKVStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, "key", "value", ""))
	require.NoError(t, storage.Delete(ctx, "key"))

	err := storage.Delete(ctx, "key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
