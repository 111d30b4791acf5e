package collection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (i item) EntityID() string { return i.ID }

func TestCollection(t *testing.T) {
	t.Run("Add preserves insertion order", func(t *testing.T) {
		c, err := New(item{ID: "b", Name: "Bran"}, item{ID: "a", Name: "Arya"})
		require.NoError(t, err)

		assert.Equal(t, []string{"b", "a"}, c.IDs())
		assert.Equal(t, "Bran", c.SelectAll()[0].Name)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("Add rejects duplicate and empty ids", func(t *testing.T) {
		c := MustNew(item{ID: "a"})

		assert.ErrorIs(t, c.Add(item{ID: "a"}), ErrDuplicateID)
		assert.ErrorIs(t, c.Add(item{}), ErrEmptyID)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("Update keeps position", func(t *testing.T) {
		c := MustNew(item{ID: "a"}, item{ID: "b"}, item{ID: "c"})

		require.NoError(t, c.Update(item{ID: "b", Name: "changed"}))

		got, ok := c.SelectByID("b")
		require.True(t, ok)
		assert.Equal(t, "changed", got.Name)
		assert.Equal(t, []string{"a", "b", "c"}, c.IDs())
	})

	t.Run("Update of missing id fails", func(t *testing.T) {
		c := MustNew(item{ID: "a"})
		assert.ErrorIs(t, c.Update(item{ID: "zzz"}), ErrNotFound)
	})

	t.Run("Remove", func(t *testing.T) {
		c := MustNew(item{ID: "a"}, item{ID: "b"}, item{ID: "c"})

		assert.True(t, c.Remove("b"))
		assert.False(t, c.Remove("b"))
		assert.Equal(t, []string{"a", "c"}, c.IDs())
		_, ok := c.SelectByID("b")
		assert.False(t, ok)
	})

	t.Run("Clone is independent", func(t *testing.T) {
		original := MustNew(item{ID: "a", Name: "one"})
		clone := original.Clone()

		require.NoError(t, clone.Update(item{ID: "a", Name: "two"}))
		require.NoError(t, clone.Add(item{ID: "b"}))

		got, _ := original.SelectByID("a")
		assert.Equal(t, "one", got.Name)
		assert.Equal(t, 1, original.Len())
	})
}

func TestCollectionJSON(t *testing.T) {
	t.Run("marshals the indexed shape", func(t *testing.T) {
		c := MustNew(item{ID: "x", Name: "Xan"})

		data, err := json.Marshal(c)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ids":["x"],"entities":{"x":{"id":"x","name":"Xan"}}}`, string(data))
	})

	t.Run("empty collection marshals empty arrays", func(t *testing.T) {
		data, err := json.Marshal(MustNew[item]())
		require.NoError(t, err)
		assert.JSONEq(t, `{"ids":[],"entities":{}}`, string(data))
	})

	tests := []struct {
		name    string
		input   string
		wantIDs []string
	}{
		{
			name:    "plain list",
			input:   `[{"id":"b"},{"id":"a"}]`,
			wantIDs: []string{"b", "a"},
		},
		{
			name:    "indexed shape follows ids order",
			input:   `{"ids":["b","a"],"entities":{"a":{"id":"a"},"b":{"id":"b"}}}`,
			wantIDs: []string{"b", "a"},
		},
		{
			name:    "orphan entities are appended sorted",
			input:   `{"ids":["c"],"entities":{"c":{"id":"c"},"b":{"id":"b"},"a":{"id":"a"}}}`,
			wantIDs: []string{"c", "a", "b"},
		},
		{
			name:    "dangling ids are dropped",
			input:   `{"ids":["ghost","a"],"entities":{"a":{"id":"a"}}}`,
			wantIDs: []string{"a"},
		},
		{
			name:    "null is empty",
			input:   `null`,
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Collection[item]
			require.NoError(t, json.Unmarshal([]byte(tt.input), &c))
			assert.Equal(t, tt.wantIDs, c.IDs())
		})
	}

	t.Run("round trip is deep equal", func(t *testing.T) {
		original := MustNew(item{ID: "a", Name: "A"}, item{ID: "b", Name: "B"})

		data, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded Collection[item]
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, original, decoded)
	})

	t.Run("duplicate ids in a list are rejected", func(t *testing.T) {
		var c Collection[item]
		err := json.Unmarshal([]byte(`[{"id":"a"},{"id":"a"}]`), &c)
		assert.ErrorIs(t, err, ErrDuplicateID)
	})

	t.Run("wrong type is an error", func(t *testing.T) {
		var c Collection[item]
		assert.Error(t, json.Unmarshal([]byte(`"nope"`), &c))
	})
}

func TestDecodeKeyed(t *testing.T) {
	t.Run("indexed shape reports map keys", func(t *testing.T) {
		got, err := DecodeKeyed[item]([]byte(`{"ids":["b"],"entities":{"a":{"name":"A"},"b":{"id":"b"}}}`))
		require.NoError(t, err)

		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].Key)
		assert.Equal(t, "a", got[1].Key)
		assert.Empty(t, got[1].Value.ID)
		assert.Equal(t, "A", got[1].Value.Name)
	})

	t.Run("plain list has empty keys", func(t *testing.T) {
		got, err := DecodeKeyed[item]([]byte(`[{"id":"a"}]`))
		require.NoError(t, err)

		require.Len(t, got, 1)
		assert.Empty(t, got[0].Key)
		assert.Equal(t, "a", got[0].Value.ID)
	})
}
