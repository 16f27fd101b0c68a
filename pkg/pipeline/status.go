package pipeline

import "github.com/Ramsey-B/willow/pkg/models"

// ComputeStatus derives a job's terminal status from its counters alone, so
// concurrent workers never disagree about the outcome:
//   - every attempted item imported (or nothing to import): completed
//   - some imported, some failed: partial
//   - nothing imported, at least one failed: failed
func ComputeStatus(total, imported, failed int) string {
	switch {
	case failed == 0:
		return models.JobStatusCompleted
	case imported > 0:
		return models.JobStatusPartial
	default:
		return models.JobStatusFailed
	}
}
