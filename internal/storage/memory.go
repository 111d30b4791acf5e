package storage

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

// MemoryStore is an in-memory Store. It backs the memory-only mode used
// when the database cannot be opened, and is handy in tests.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[Partition]*memPartition
	closed     bool
}

type memPartition struct {
	order  []string
	values map[string][]byte
	seq    int64
}

var _ Store = (*MemoryStore)(nil)

var errClosed = errors.New("store is closed")

// NewMemoryStore creates an empty in-memory store with every partition.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{partitions: make(map[Partition]*memPartition, len(partitions))}
	for p := range partitions {
		m.partitions[p] = &memPartition{values: make(map[string][]byte)}
	}
	return m
}

func (m *MemoryStore) partition(p Partition) (*memPartition, error) {
	if m.closed {
		return nil, errClosed
	}
	if _, err := lookup(p); err != nil {
		return nil, err
	}
	return m.partitions[p], nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Put upserts a value.
func (m *MemoryStore) Put(_ context.Context, partition Partition, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, err := m.partition(partition)
	if err != nil {
		return writeErr("put", partition, key, err)
	}
	if def := partitions[partition]; def.autoIncrement {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return writeErr("put", partition, key, err)
		}
		if id > part.seq {
			part.seq = id
		}
	}
	if _, exists := part.values[key]; !exists {
		part.order = append(part.order, key)
	}
	part.values[key] = clone(value)
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, partition Partition, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	part, err := m.partition(partition)
	if err != nil {
		return nil, readErr("get", partition, key, err)
	}
	value, ok := part.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(value), nil
}

// Delete removes a key if present.
func (m *MemoryStore) Delete(_ context.Context, partition Partition, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, err := m.partition(partition)
	if err != nil {
		return writeErr("delete", partition, key, err)
	}
	if _, ok := part.values[key]; !ok {
		return nil
	}
	delete(part.values, key)
	for i, k := range part.order {
		if k == key {
			part.order = append(part.order[:i:i], part.order[i+1:]...)
			break
		}
	}
	return nil
}

// Append stores value under the next sequence number.
func (m *MemoryStore) Append(_ context.Context, partition Partition, value []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, err := m.partition(partition)
	if err != nil {
		return 0, writeErr("append", partition, "", err)
	}
	if !partitions[partition].autoIncrement {
		return 0, writeErr("append", partition, "", errors.New("partition has no auto-incrementing keys"))
	}
	part.seq++
	key := strconv.FormatInt(part.seq, 10)
	part.order = append(part.order, key)
	part.values[key] = clone(value)
	return part.seq, nil
}

// ListAll returns records newest first.
func (m *MemoryStore) ListAll(_ context.Context, partition Partition) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	part, err := m.partition(partition)
	if err != nil {
		return nil, readErr("list", partition, "", err)
	}
	records := make([]Record, 0, len(part.order))
	for i := len(part.order) - 1; i >= 0; i-- {
		key := part.order[i]
		records = append(records, Record{Key: key, Value: clone(part.values[key])})
	}
	return records, nil
}

// Clear removes every record of the partition. Sequences keep counting.
func (m *MemoryStore) Clear(_ context.Context, partition Partition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, err := m.partition(partition)
	if err != nil {
		return writeErr("clear", partition, "", err)
	}
	part.order = nil
	part.values = make(map[string][]byte)
	return nil
}

// Close marks the store closed; later calls fail.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
