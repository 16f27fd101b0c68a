package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/willow/pkg/models"
)

func TestComputeStatus(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		imported int
		failed   int
		expected string
	}{
		{"all imported", 5, 5, 0, models.JobStatusCompleted},
		{"nothing staged", 0, 0, 0, models.JobStatusCompleted},
		{"deselected items leave a gap", 10, 7, 0, models.JobStatusCompleted},
		{"mixed outcome", 5, 3, 2, models.JobStatusPartial},
		{"single failure among successes", 10, 9, 1, models.JobStatusPartial},
		{"everything failed", 4, 0, 4, models.JobStatusFailed},
		{"one attempted, one failed", 3, 0, 1, models.JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeStatus(tt.total, tt.imported, tt.failed))
		})
	}
}
