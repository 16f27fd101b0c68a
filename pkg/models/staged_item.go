package models

import (
	"encoding/json"
	"time"
)

// Content types a connector may produce
const (
	ContentTypePhoto        = "photo"
	ContentTypeVideo        = "video"
	ContentTypeText         = "text"
	ContentTypePost         = "post"
	ContentTypeStory        = "story"
	ContentTypeMemory       = "memory"
	ContentTypePerson       = "person"
	ContentTypeRelationship = "relationship"
	ContentTypeDocument     = "document"
)

// Commit statuses for a staged item within a job
const (
	CommitStatusPending   = "pending"
	CommitStatusSucceeded = "succeeded"
	CommitStatusFailed    = "failed"
)

// StagedItem is one unit of fetched content awaiting review and commit.
// The selected flag is durable: it survives restarts and is honored by commit.
// Field order matches schema: id, job_id, source_item_id, content_type, ...
type StagedItem struct {
	ID           string          `json:"id" db:"id"`
	JobID        string          `json:"job_id" db:"job_id"`
	SourceItemID string          `json:"source_item_id" db:"source_item_id"`
	ContentType  string          `json:"content_type" db:"content_type"`
	Title        string          `json:"title" db:"title"`
	Data         json.RawMessage `json:"data" db:"data"`
	Fingerprint  string          `json:"fingerprint" db:"fingerprint"`
	Selected     bool            `json:"selected" db:"selected"`
	CommitStatus string          `json:"commit_status" db:"commit_status"`
	Skipped      bool            `json:"skipped" db:"skipped"`
	CommitError  *string         `json:"commit_error,omitempty" db:"commit_error"`
	TargetID     *string         `json:"target_id,omitempty" db:"target_id"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// ToggleItemRequest sets the durable selection flag on a staged item
type ToggleItemRequest struct {
	Selected bool `json:"selected"`
}

// StagedItemListResponse is the paginated response for listing a job's items
type StagedItemListResponse struct {
	Items      []StagedItem `json:"items"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}

// CommitResult summarizes one commit or retry pass over a job
type CommitResult struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Attempted int    `json:"attempted"`
	Imported  int    `json:"imported"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}
