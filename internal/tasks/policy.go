package tasks

import (
	"maps"
	"slices"

	"github.com/desertthunder/synchronic/internal/shared"
)

// ResolutionPolicy maps a media title to the index of the search candidate to use for it.
// Titles not in the map use the first candidate.
type ResolutionPolicy map[string]int

// Index returns the candidate index for title.
// An exact title match wins over a match after [shared.NormalizeTitle].
// When several keys normalize to the same title, the lexically smallest key wins.
func (p ResolutionPolicy) Index(title string) int {
	if idx, ok := p[title]; ok {
		return idx
	}

	normalized := shared.NormalizeTitle(title)
	for _, t := range slices.Sorted(maps.Keys(p)) {
		if shared.NormalizeTitle(t) == normalized {
			return p[t]
		}
	}
	return 0
}
