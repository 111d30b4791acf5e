// Package storage provides the local transactional key/value store.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Partition names a key space inside the store.
type Partition string

const (
	// PartitionAppData holds the "project" and "settings" records.
	PartitionAppData Partition = "app-data"
	// PartitionSnapshots holds snapshot records under auto-incrementing keys.
	PartitionSnapshots Partition = "snapshots-store"
	// PartitionImages holds base64 image payloads keyed by entity id.
	PartitionImages Partition = "images-store"
)

// Well-known keys of the app-data partition.
const (
	KeyProject  = "project"
	KeySettings = "settings"
)

var (
	ErrUnavailable      = errors.New("storage unavailable")
	ErrWriteFailed      = errors.New("storage write failed")
	ErrReadFailed       = errors.New("storage read failed")
	ErrNotFound         = errors.New("key not found")
	ErrUnknownPartition = errors.New("unknown partition")
)

// Record is a single key/value pair read from a partition.
type Record struct {
	Key   string
	Value []byte
}

// Store is the contract shared by the SQLite store and the in-memory fallback.
// Every operation touches exactly one partition; callers compose
// multi-partition work themselves.
type Store interface {
	Put(ctx context.Context, partition Partition, key string, value []byte) error
	Get(ctx context.Context, partition Partition, key string) ([]byte, error)
	Delete(ctx context.Context, partition Partition, key string) error
	// Append stores value under the next auto-incremented key.
	Append(ctx context.Context, partition Partition, value []byte) (int64, error)
	// ListAll returns every record, newest first.
	ListAll(ctx context.Context, partition Partition) ([]Record, error)
	Clear(ctx context.Context, partition Partition) error
	Close() error
}

// Error describes a failed storage operation. It matches both its kind
// (ErrWriteFailed, ErrReadFailed, ErrUnavailable) and the underlying cause.
type Error struct {
	Op        string
	Partition Partition
	Key       string
	Kind      error
	Err       error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s/%s: %v: %v", e.Op, e.Partition, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Partition, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func writeErr(op string, p Partition, key string, err error) error {
	return &Error{Op: op, Partition: p, Key: key, Kind: ErrWriteFailed, Err: err}
}

func readErr(op string, p Partition, key string, err error) error {
	return &Error{Op: op, Partition: p, Key: key, Kind: ErrReadFailed, Err: err}
}

type partitionDef struct {
	table         string
	autoIncrement bool
}

var partitions = map[Partition]partitionDef{
	PartitionAppData:   {table: "app_data"},
	PartitionSnapshots: {table: "snapshots", autoIncrement: true},
	PartitionImages:    {table: "images"},
}

func lookup(p Partition) (partitionDef, error) {
	def, ok := partitions[p]
	if !ok {
		return partitionDef{}, fmt.Errorf("%w: %q", ErrUnknownPartition, p)
	}
	return def, nil
}
