// Package connectors defines the source connector contract and its
// implementations. A connector knows how to validate credentials for one
// external source and stream its content as normalized items.
package connectors

import (
	"context"
	"encoding/json"

	"github.com/Ramsey-B/willow/pkg/models"
)

// AccountInfo identifies the external account behind a set of credentials
type AccountInfo struct {
	ExternalAccountID string
	DisplayName       string
}

// Sequence streams normalized content items one at a time. Next returns io.EOF
// when the source is exhausted. Implementations fetch lazily so large sources
// never need to be held in memory at once.
type Sequence interface {
	Next(ctx context.Context) (*models.NormalizedContent, error)
}

// Connector is one registered external source
type Connector interface {
	// Descriptor returns the connector's discovery metadata
	Descriptor() models.SourceDescriptor

	// Authenticate validates credentials against the source and resolves the
	// external account they belong to. Returns models.ErrAuth for rejected
	// credentials and models.ErrUpstreamUnavailable when the source is down.
	Authenticate(ctx context.Context, credentials json.RawMessage) (*AccountInfo, error)

	// Fetch opens a content stream for the account. Returns
	// models.ErrStaleCredentials when previously valid credentials no longer work.
	Fetch(ctx context.Context, credentials json.RawMessage) (Sequence, error)
}
