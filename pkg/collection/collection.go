// Package collection provides an insertion-ordered entity collection keyed by id.
package collection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateID = errors.New("duplicate entity id")
	ErrNotFound    = errors.New("entity not found")
	ErrEmptyID     = errors.New("entity id is empty")
)

// Entity is anything that carries a stable id.
type Entity interface {
	EntityID() string
}

// Collection keeps entities in insertion order with O(1) lookup by id.
// The zero value is not ready for use; call New.
type Collection[T Entity] struct {
	ids      []string
	entities map[string]T
}

// New creates a collection from the given entities, preserving their order.
func New[T Entity](items ...T) (Collection[T], error) {
	c := Collection[T]{
		ids:      make([]string, 0, len(items)),
		entities: make(map[string]T, len(items)),
	}
	for _, item := range items {
		if err := c.Add(item); err != nil {
			return Collection[T]{}, err
		}
	}
	return c, nil
}

// MustNew is New for literals in tests and defaults.
func MustNew[T Entity](items ...T) Collection[T] {
	c, err := New(items...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Collection[T]) ensure() {
	if c.entities == nil {
		c.entities = make(map[string]T)
	}
	if c.ids == nil {
		c.ids = []string{}
	}
}

// Len returns the number of entities.
func (c Collection[T]) Len() int {
	return len(c.ids)
}

// IDs returns a copy of the ids in order.
func (c Collection[T]) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// SelectAll returns every entity in insertion order.
func (c Collection[T]) SelectAll() []T {
	out := make([]T, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.entities[id])
	}
	return out
}

// SelectByID returns the entity with the given id.
func (c Collection[T]) SelectByID(id string) (T, bool) {
	item, ok := c.entities[id]
	return item, ok
}

// Add appends an entity. The id must be non-empty and unused.
func (c *Collection[T]) Add(item T) error {
	c.ensure()
	id := item.EntityID()
	if id == "" {
		return ErrEmptyID
	}
	if _, exists := c.entities[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	c.ids = append(c.ids, id)
	c.entities[id] = item
	return nil
}

// Update replaces an existing entity in place, keeping its position.
func (c *Collection[T]) Update(item T) error {
	c.ensure()
	id := item.EntityID()
	if _, exists := c.entities[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.entities[id] = item
	return nil
}

// Remove deletes an entity. Removing a missing id reports false.
func (c *Collection[T]) Remove(id string) bool {
	if _, exists := c.entities[id]; !exists {
		return false
	}
	delete(c.entities, id)
	for i, existing := range c.ids {
		if existing == id {
			c.ids = append(c.ids[:i:i], c.ids[i+1:]...)
			break
		}
	}
	return true
}

// Clone returns an independent copy. Entities are copied by value.
func (c Collection[T]) Clone() Collection[T] {
	out := Collection[T]{
		ids:      make([]string, len(c.ids)),
		entities: make(map[string]T, len(c.entities)),
	}
	copy(out.ids, c.ids)
	for id, item := range c.entities {
		out.entities[id] = item
	}
	return out
}

// indexed is the normalized wire shape.
type indexed[T any] struct {
	IDs      []string     `json:"ids"`
	Entities map[string]T `json:"entities"`
}

// MarshalJSON writes the normalized {ids, entities} shape.
func (c Collection[T]) MarshalJSON() ([]byte, error) {
	c.ensure()
	return json.Marshal(indexed[T]{IDs: c.ids, Entities: c.entities})
}

// UnmarshalJSON accepts either a plain list of entities or the
// normalized {ids, entities} shape.
func (c *Collection[T]) UnmarshalJSON(data []byte) error {
	items, err := DecodeEither[T](data)
	if err != nil {
		return err
	}
	decoded, err := New(items...)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// Keyed is a decoded entity with the map key it was stored under. Key is
// empty for entities that came from a plain list.
type Keyed[T any] struct {
	Key   string
	Value T
}

// DecodeEither decodes a list or an {ids, entities} object into an ordered
// slice. Entities listed in ids come first, in ids order; entities missing
// from ids follow sorted by key. Ids without an entity are dropped.
func DecodeEither[T any](data []byte) ([]T, error) {
	keyed, err := DecodeKeyed[T](data)
	if err != nil {
		return nil, err
	}
	items := make([]T, len(keyed))
	for i, k := range keyed {
		items[i] = k.Value
	}
	return items, nil
}

// DecodeKeyed is DecodeEither that also reports each entity's map key, so
// callers can fall back to it when an entity carries no id of its own.
func DecodeKeyed[T any](data []byte) ([]Keyed[T], error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Keyed[T]{}, nil
	}

	if trimmed[0] == '[' {
		var list []T
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to decode entity list: %w", err)
		}
		items := make([]Keyed[T], len(list))
		for i, v := range list {
			items[i] = Keyed[T]{Value: v}
		}
		return items, nil
	}

	var idx indexed[T]
	if err := json.Unmarshal(trimmed, &idx); err != nil {
		return nil, fmt.Errorf("failed to decode indexed entities: %w", err)
	}

	items := make([]Keyed[T], 0, len(idx.Entities))
	seen := make(map[string]bool, len(idx.IDs))
	for _, id := range idx.IDs {
		item, ok := idx.Entities[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		items = append(items, Keyed[T]{Key: id, Value: item})
	}

	var orphans []string
	for id := range idx.Entities {
		if !seen[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		items = append(items, Keyed[T]{Key: id, Value: idx.Entities[id]})
	}

	return items, nil
}
