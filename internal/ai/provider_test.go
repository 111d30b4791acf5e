package ai

import (
	"testing"

	"github.com/azyu/storyloom/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestAvatarPrompt(t *testing.T) {
	tests := []struct {
		name      string
		character types.Character
		contains  []string
	}{
		{
			name:      "full character",
			character: types.Character{Name: "Mara", Role: "lighthouse keeper", Description: "Grey eyes, salt-stiff coat", Motivation: "Keep the lamp lit."},
			contains:  []string{"Portrait of Mara, lighthouse keeper.", "Grey eyes, salt-stiff coat.", "Keep the lamp lit.", "no text"},
		},
		{
			name:      "unnamed character",
			character: types.Character{},
			contains:  []string{"Portrait of a story character."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := AvatarPrompt(tt.character)
			for _, want := range tt.contains {
				assert.Contains(t, prompt, want)
			}
		})
	}
}

func TestAmbiancePrompt(t *testing.T) {
	prompt := AmbiancePrompt(types.World{Name: "Cape Ruin", Geography: "Basalt cliffs", Culture: "  "})

	assert.Contains(t, prompt, "Establishing shot of Cape Ruin.")
	assert.Contains(t, prompt, "Basalt cliffs.")
	assert.NotContains(t, prompt, "  .")
}
