package tasks

import "github.com/desertthunder/synchronic/internal/models"

// DetermineStatus classifies watch progress.
//
// A show with an unknown total (0) and some episodes watched is treated as ongoing and stays "watching".
func DetermineStatus(watched, total int) models.Status {
	switch {
	case total > 0 && watched >= total:
		return models.StatusCompleted
	case watched > 0:
		return models.StatusWatching
	default:
		return models.StatusNotStarted
	}
}
