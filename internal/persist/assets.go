package persist

import (
	"context"
	"fmt"

	"github.com/azyu/storyloom/internal/storage"
)

// Assets stores base64 image payloads keyed by the owning entity id.
// Images never live inside the project record.
type Assets struct {
	store storage.Store
}

// NewAssets wraps the images partition of store.
func NewAssets(store storage.Store) *Assets {
	return &Assets{store: store}
}

// Put stores the payload for an entity, replacing any previous one.
func (a *Assets) Put(ctx context.Context, entityID, base64Data string) error {
	if err := a.store.Put(ctx, storage.PartitionImages, entityID, []byte(base64Data)); err != nil {
		return fmt.Errorf("failed to store image for %s: %w", entityID, err)
	}
	return nil
}

// Get returns the payload for an entity. A missing image matches
// storage.ErrNotFound.
func (a *Assets) Get(ctx context.Context, entityID string) (string, error) {
	data, err := a.store.Get(ctx, storage.PartitionImages, entityID)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Delete removes the payload for an entity. Missing payloads are ignored.
func (a *Assets) Delete(ctx context.Context, entityID string) error {
	if err := a.store.Delete(ctx, storage.PartitionImages, entityID); err != nil {
		return fmt.Errorf("failed to delete image for %s: %w", entityID, err)
	}
	return nil
}

// All returns every stored payload keyed by entity id.
func (a *Assets) All(ctx context.Context) (map[string]string, error) {
	records, err := a.store.ListAll(ctx, storage.PartitionImages)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[r.Key] = string(r.Value)
	}
	return out, nil
}

// Clear removes every stored payload.
func (a *Assets) Clear(ctx context.Context) error {
	return a.store.Clear(ctx, storage.PartitionImages)
}
