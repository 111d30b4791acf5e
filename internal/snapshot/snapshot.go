// Package snapshot keeps named, immutable copies of a project.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/azyu/storyloom/internal/metrics"
	"github.com/azyu/storyloom/internal/persist"
	"github.com/azyu/storyloom/internal/storage"
	"github.com/azyu/storyloom/internal/token"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/sirupsen/logrus"
)

// DefaultRetention is how many automatic snapshots survive pruning.
const DefaultRetention = 20

var ErrNotFound = errors.New("snapshot not found")

// record is the stored form. The id is the storage key and is not repeated.
type record struct {
	Date      time.Time       `json:"date"`
	Name      string          `json:"name"`
	WordCount int             `json:"wordCount"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Manager creates, lists, restores, deletes and prunes snapshots.
type Manager struct {
	store     storage.Store
	log       logrus.FieldLogger
	metrics   *metrics.Recorder
	retention int
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetention sets how many automatic snapshots are kept.
func WithRetention(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.retention = n
		}
	}
}

// WithMetrics records snapshot activity.
func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a snapshot manager over the snapshots partition.
func NewManager(store storage.Store, log logrus.FieldLogger, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		log:       log,
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Retention returns the automatic snapshot cap.
func (m *Manager) Retention() int {
	return m.retention
}

// Create stores a copy of project. An empty name yields an automatic snapshot.
func (m *Manager) Create(ctx context.Context, project *types.ProjectData, name string) (types.SnapshotMeta, error) {
	if name == "" {
		name = types.DefaultSnapshotName
	}

	data, err := persist.EncodeProject(project)
	if err != nil {
		return types.SnapshotMeta{}, fmt.Errorf("failed to create snapshot: %w", err)
	}

	rec := record{
		Date:      m.now().UTC(),
		Name:      name,
		WordCount: token.ProjectWords(project),
		Data:      data,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return types.SnapshotMeta{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	id, err := m.store.Append(ctx, storage.PartitionSnapshots, raw)
	if err != nil {
		return types.SnapshotMeta{}, fmt.Errorf("failed to create snapshot: %w", err)
	}

	meta := types.SnapshotMeta{ID: id, Date: rec.Date, Name: rec.Name, WordCount: rec.WordCount}
	m.metrics.SnapshotCreated(meta.IsAutomatic())
	m.log.WithFields(logrus.Fields{"snapshot_id": id, "name": name}).Debug("snapshot created")
	return meta, nil
}

// CreateAutomatic creates an automatic snapshot and prunes old ones.
func (m *Manager) CreateAutomatic(ctx context.Context, project *types.ProjectData) (types.SnapshotMeta, error) {
	meta, err := m.Create(ctx, project, "")
	if err != nil {
		return meta, err
	}
	if _, err := m.Prune(ctx); err != nil {
		m.log.WithError(err).Warn("failed to prune automatic snapshots")
	}
	return meta, nil
}

// List returns snapshot metadata, newest first. Unreadable records are
// skipped.
func (m *Manager) List(ctx context.Context) ([]types.SnapshotMeta, error) {
	records, err := m.store.ListAll(ctx, storage.PartitionSnapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	metas := make([]types.SnapshotMeta, 0, len(records))
	for _, r := range records {
		id, err := strconv.ParseInt(r.Key, 10, 64)
		if err != nil {
			m.log.WithField("snapshot_id", r.Key).Warn("skipping snapshot with invalid id")
			continue
		}
		var rec record
		if err := json.Unmarshal(r.Value, &rec); err != nil {
			m.log.WithError(err).WithField("snapshot_id", id).Warn("skipping unreadable snapshot")
			continue
		}
		metas = append(metas, types.SnapshotMeta{ID: id, Date: rec.Date, Name: rec.Name, WordCount: rec.WordCount})
	}

	sort.SliceStable(metas, func(i, j int) bool {
		if !metas[i].Date.Equal(metas[j].Date) {
			return metas[i].Date.After(metas[j].Date)
		}
		return metas[i].ID > metas[j].ID
	})
	return metas, nil
}

// Get returns the full snapshot.
func (m *Manager) Get(ctx context.Context, id int64) (types.SnapshotRecord, error) {
	raw, err := m.store.Get(ctx, storage.PartitionSnapshots, strconv.FormatInt(id, 10))
	if errors.Is(err, storage.ErrNotFound) {
		return types.SnapshotRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return types.SnapshotRecord{}, fmt.Errorf("failed to read snapshot %d: %w", id, err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return types.SnapshotRecord{}, fmt.Errorf("failed to decode snapshot %d: %w", id, err)
	}
	project, err := persist.DecodeProject(rec.Data)
	if err != nil {
		return types.SnapshotRecord{}, fmt.Errorf("failed to decode snapshot %d: %w", id, err)
	}

	return types.SnapshotRecord{
		SnapshotMeta: types.SnapshotMeta{ID: id, Date: rec.Date, Name: rec.Name, WordCount: rec.WordCount},
		Data:         project,
	}, nil
}

// Restore returns a fresh copy of the project stored in the snapshot.
// The snapshot itself is left untouched.
func (m *Manager) Restore(ctx context.Context, id int64) (*types.ProjectData, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// Exists reports whether a snapshot with the id is stored.
func (m *Manager) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := m.store.Get(ctx, storage.PartitionSnapshots, strconv.FormatInt(id, 10))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to read snapshot %d: %w", id, err)
	}
	return true, nil
}

// Delete removes a snapshot. Deleting a missing snapshot is not an error.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if err := m.store.Delete(ctx, storage.PartitionSnapshots, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("failed to delete snapshot %d: %w", id, err)
	}
	return nil
}

// Prune deletes automatic snapshots beyond the retention cap, oldest first.
// Named snapshots are never pruned. It returns the number deleted.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	metas, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	kept, deleted := 0, 0
	for _, meta := range metas {
		if !meta.IsAutomatic() {
			continue
		}
		if kept < m.retention {
			kept++
			continue
		}
		if err := m.Delete(ctx, meta.ID); err != nil {
			return deleted, err
		}
		deleted++
	}

	m.metrics.SnapshotsPruned(deleted)
	if deleted > 0 {
		m.log.WithField("deleted", deleted).Info("pruned automatic snapshots")
	}
	return deleted, nil
}
