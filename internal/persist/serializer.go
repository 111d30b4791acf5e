// Package persist turns live state into storage records and back.
package persist

import (
	"encoding/json"
	"fmt"

	"github.com/azyu/storyloom/internal/state"
	"github.com/azyu/storyloom/pkg/types"
)

// Slice is the persistable part of the application state: the present
// project and the settings. Undo history and UI selection are never stored.
type Slice struct {
	Project  *types.ProjectData
	Settings *types.Settings
}

// Extract picks the persistable slice out of a state value.
func Extract(st state.State) Slice {
	return Slice{
		Project:  st.Project(),
		Settings: st.Settings,
	}
}

// EncodeProject serialises the project record.
func EncodeProject(p *types.ProjectData) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("failed to encode project: nil project")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode project: %w", err)
	}
	return data, nil
}

// EncodeSettings serialises the settings record.
func EncodeSettings(s *types.Settings) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("failed to encode settings: nil settings")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return data, nil
}
