package models

import (
	"encoding/json"
	"time"
)

// Account statuses
const (
	AccountStatusActive       = "active"
	AccountStatusDisconnected = "disconnected"
	AccountStatusStale        = "stale"
)

// ConnectedAccount links a user to an external content source.
// Field order matches schema: id, user_id, source, external_account_id, ...
type ConnectedAccount struct {
	ID                string          `json:"id" db:"id"`
	UserID            string          `json:"user_id" db:"user_id"`
	Source            string          `json:"source" db:"source"`
	ExternalAccountID string          `json:"external_account_id" db:"external_account_id"`
	DisplayName       string          `json:"display_name" db:"display_name"`
	Status            string          `json:"status" db:"status"`
	Credentials       json.RawMessage `json:"-" db:"credentials"`
	LastSyncedAt      *time.Time      `json:"last_synced_at,omitempty" db:"last_synced_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsActive reports whether the account can be synced without re-connecting.
func (a *ConnectedAccount) IsActive() bool {
	return a.Status == AccountStatusActive && a.DeletedAt == nil
}

// ConnectAccountRequest is the request for connecting (or re-connecting) a source account
type ConnectAccountRequest struct {
	Source      string         `json:"source" validate:"required"`
	Credentials map[string]any `json:"credentials" validate:"required"`
}

// ConnectedAccountListResponse is the response for listing connected accounts
type ConnectedAccountListResponse struct {
	Items      []ConnectedAccount `json:"items"`
	TotalCount int                `json:"total_count"`
}
