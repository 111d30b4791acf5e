package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/azyu/storyloom/internal/storage"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/sirupsen/logrus"
)

// ErrInvalidProject is returned when a stored project record does not have
// the shape of a project.
var ErrInvalidProject = errors.New("invalid project record")

// Loaded is the state read back at startup.
type Loaded struct {
	Project  *types.ProjectData
	Settings *types.Settings
	// Recovered is set when a stored record was unreadable and defaults
	// were used in its place.
	Recovered bool
}

// Load reads the project and settings records. It never fails: missing
// records yield defaults, and unreadable or corrupt records are logged and
// replaced by defaults.
func Load(ctx context.Context, store storage.Store, log logrus.FieldLogger) Loaded {
	out := Loaded{
		Project:  types.DefaultProjectData(),
		Settings: types.DefaultSettings(),
	}

	if raw, ok := read(ctx, store, storage.KeyProject, log, &out); ok {
		project, err := DecodeProject(raw)
		if err != nil {
			log.WithError(err).WithField("key", storage.KeyProject).Warn("discarding corrupt project record")
			out.Recovered = true
		} else {
			out.Project = project
		}
	}

	if raw, ok := read(ctx, store, storage.KeySettings, log, &out); ok {
		settings, err := DecodeSettings(raw)
		if err != nil {
			log.WithError(err).WithField("key", storage.KeySettings).Warn("discarding corrupt settings record")
			out.Recovered = true
		} else {
			out.Settings = settings
		}
	}

	return out
}

func read(ctx context.Context, store storage.Store, key string, log logrus.FieldLogger, out *Loaded) ([]byte, bool) {
	raw, err := store.Get(ctx, storage.PartitionAppData, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, false
	case err != nil:
		log.WithError(err).WithField("key", key).Warn("failed to read persisted record, using defaults")
		out.Recovered = true
		return nil, false
	}
	return raw, true
}

// DecodeProject validates and decodes a stored project record. A record
// must be an object holding characters and worlds. Records written by older
// versions that wrapped the project in a history envelope are unwrapped.
func DecodeProject(raw []byte) (*types.ProjectData, error) {
	fields, err := objectFields(raw)
	if err != nil {
		return nil, err
	}

	if present, ok := fields["present"]; ok {
		if _, hasChars := fields["characters"]; !hasChars {
			raw = present
			if fields, err = objectFields(raw); err != nil {
				return nil, fmt.Errorf("legacy envelope: %w", err)
			}
		}
	}

	for _, key := range []string{"characters", "worlds"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidProject, key)
		}
	}

	p := types.DefaultProjectData()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	p.Normalize()
	return p, nil
}

// DecodeSettings decodes a stored settings record over the defaults so that
// fields added later keep their default values.
func DecodeSettings(raw []byte) (*types.Settings, error) {
	if _, err := objectFields(raw); err != nil {
		return nil, err
	}
	s := types.DefaultSettings()
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("invalid settings record: %w", err)
	}
	return s, nil
}

func objectFields(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidProject)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	return fields, nil
}
