package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})

	t.Run("returned values are copies", func(t *testing.T) {
		ctx := context.Background()
		s := NewMemoryStore()
		value := []byte("abc")

		require.NoError(t, s.Put(ctx, PartitionImages, "k", value))
		value[0] = 'z'

		got, err := s.Get(ctx, PartitionImages, "k")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(got))
	})

	t.Run("closed store fails", func(t *testing.T) {
		ctx := context.Background()
		s := NewMemoryStore()
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.Put(ctx, PartitionImages, "k", nil), ErrWriteFailed)
	})
}
