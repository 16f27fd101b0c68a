// Package target talks to the memorial platform's internal API. The commit
// pipeline writes records through it and the duplicate detector reads and
// merges memorials through it.
package target

import (
	"context"

	"github.com/Ramsey-B/willow/pkg/models"
)

// Client is the platform API surface willow depends on. The pipeline and
// detector take this interface so tests can fake the platform.
type Client interface {
	// CreateRecord commits one record. The record's dedupe key makes the call
	// idempotent: committing the same item twice returns models.ErrConflict
	// the second time. Returns the created record's platform id.
	CreateRecord(ctx context.Context, record *models.TargetRecord) (string, error)

	// ListMemorials pages through the platform's memorials for duplicate
	// scanning. Returns an empty slice past the last page.
	ListMemorials(ctx context.Context, page, pageSize int) ([]models.Memorial, error)

	// MergeMemorials folds the absorbed memorial into the survivor
	MergeMemorials(ctx context.Context, survivorID, absorbedID string) error
}
