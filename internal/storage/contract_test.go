package storage

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("Put then Get returns the value", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Put(ctx, PartitionAppData, KeyProject, []byte(`{"title":"A"}`)))

		got, err := s.Get(ctx, PartitionAppData, KeyProject)
		require.NoError(t, err)
		assert.Equal(t, `{"title":"A"}`, string(got))
	})

	t.Run("Put overwrites, last value wins", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Put(ctx, PartitionAppData, KeySettings, []byte("one")))
		require.NoError(t, s.Put(ctx, PartitionAppData, KeySettings, []byte("two")))

		got, err := s.Get(ctx, PartitionAppData, KeySettings)
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	})

	t.Run("Get of missing key is ErrNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Get(ctx, PartitionImages, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("partitions are isolated", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Put(ctx, PartitionAppData, "c1", []byte("data")))

		_, err := s.Get(ctx, PartitionImages, "c1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Delete removes and tolerates missing keys", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Put(ctx, PartitionImages, "c1", []byte("img")))
		require.NoError(t, s.Delete(ctx, PartitionImages, "c1"))
		require.NoError(t, s.Delete(ctx, PartitionImages, "c1"))

		_, err := s.Get(ctx, PartitionImages, "c1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Append assigns increasing ids", func(t *testing.T) {
		s := newStore(t)

		first, err := s.Append(ctx, PartitionSnapshots, []byte("1"))
		require.NoError(t, err)
		second, err := s.Append(ctx, PartitionSnapshots, []byte("2"))
		require.NoError(t, err)

		assert.Greater(t, second, first)

		got, err := s.Get(ctx, PartitionSnapshots, strconv.FormatInt(second, 10))
		require.NoError(t, err)
		assert.Equal(t, "2", string(got))
	})

	t.Run("Append ids are not reused after delete", func(t *testing.T) {
		s := newStore(t)

		first, err := s.Append(ctx, PartitionSnapshots, []byte("1"))
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, PartitionSnapshots, strconv.FormatInt(first, 10)))

		second, err := s.Append(ctx, PartitionSnapshots, []byte("2"))
		require.NoError(t, err)
		assert.Greater(t, second, first)
	})

	t.Run("Append on keyed partition fails as a write error", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Append(ctx, PartitionAppData, []byte("x"))
		assert.ErrorIs(t, err, ErrWriteFailed)
	})

	t.Run("ListAll is newest first", func(t *testing.T) {
		s := newStore(t)

		for i := 1; i <= 3; i++ {
			_, err := s.Append(ctx, PartitionSnapshots, []byte(strconv.Itoa(i)))
			require.NoError(t, err)
		}

		records, err := s.ListAll(ctx, PartitionSnapshots)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "3", string(records[0].Value))
		assert.Equal(t, "2", string(records[1].Value))
		assert.Equal(t, "1", string(records[2].Value))
	})

	t.Run("ListAll keeps position of updated keys", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Put(ctx, PartitionImages, "a", []byte("1")))
		require.NoError(t, s.Put(ctx, PartitionImages, "b", []byte("2")))
		require.NoError(t, s.Put(ctx, PartitionImages, "a", []byte("3")))

		records, err := s.ListAll(ctx, PartitionImages)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, Record{Key: "b", Value: []byte("2")}, records[0])
		assert.Equal(t, Record{Key: "a", Value: []byte("3")}, records[1])
	})

	t.Run("ListAll of empty partition is empty", func(t *testing.T) {
		s := newStore(t)

		records, err := s.ListAll(ctx, PartitionImages)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Clear empties one partition only", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Put(ctx, PartitionImages, "a", []byte("1")))
		require.NoError(t, s.Put(ctx, PartitionAppData, KeyProject, []byte("{}")))
		require.NoError(t, s.Clear(ctx, PartitionImages))

		records, err := s.ListAll(ctx, PartitionImages)
		require.NoError(t, err)
		assert.Empty(t, records)

		_, err = s.Get(ctx, PartitionAppData, KeyProject)
		assert.NoError(t, err)
	})

	t.Run("unknown partition is rejected", func(t *testing.T) {
		s := newStore(t)

		err := s.Put(ctx, Partition("nope"), "k", []byte("v"))
		assert.ErrorIs(t, err, ErrWriteFailed)
		assert.ErrorIs(t, err, ErrUnknownPartition)

		_, err = s.Get(ctx, Partition("nope"), "k")
		assert.ErrorIs(t, err, ErrReadFailed)
	})

	t.Run("non integer snapshot key is rejected", func(t *testing.T) {
		s := newStore(t)

		err := s.Put(ctx, PartitionSnapshots, "abc", []byte("v"))
		assert.ErrorIs(t, err, ErrWriteFailed)
	})
}
