package token

import (
	"strings"

	"github.com/azyu/storyloom/pkg/types"
)

// CountWords returns the number of whitespace-delimited tokens in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// ProjectWords sums the word counts of every manuscript section.
func ProjectWords(p *types.ProjectData) int {
	if p == nil {
		return 0
	}
	total := 0
	for _, s := range p.Manuscript {
		total += CountWords(s.Content)
	}
	return total
}

// GoalProgress returns the fraction of the word goal reached, capped at 1.
// A project without a goal reports 0.
func GoalProgress(p *types.ProjectData) float64 {
	if p == nil || p.ProjectGoals.TotalWordCount <= 0 {
		return 0
	}
	progress := float64(ProjectWords(p)) / float64(p.ProjectGoals.TotalWordCount)
	return min(progress, 1)
}
