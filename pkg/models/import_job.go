package models

import "time"

// Job statuses
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusPartial    = "partial"
	JobStatusFailed     = "failed"
)

// Targets an import run may commit into
const (
	JobTargetMemorial   = "memorial"
	JobTargetFamilyTree = "family_tree"
	JobTargetUserMedia  = "user_media"
)

// ValidJobTarget reports whether t names a known import target.
func ValidJobTarget(t string) bool {
	return t == JobTargetMemorial || t == JobTargetFamilyTree || t == JobTargetUserMedia
}

// ImportJob tracks one run of pulling content from a source and committing it
// to the platform. Counters only ever increase; imported + failed never
// exceeds total.
// Field order matches schema: id, account_id, user_id, source, target_type, status, ...
type ImportJob struct {
	ID            string     `json:"id" db:"id"`
	AccountID     string     `json:"account_id" db:"account_id"`
	UserID        string     `json:"user_id" db:"user_id"`
	Source        string     `json:"source" db:"source"`
	TargetType    string     `json:"target_type" db:"target_type"`
	Status        string     `json:"status" db:"status"`
	TotalItems    int        `json:"total_items" db:"total_items"`
	ImportedItems int        `json:"imported_items" db:"imported_items"`
	FailedItems   int        `json:"failed_items" db:"failed_items"`
	Error         *string    `json:"error,omitempty" db:"error"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the job has reached a final status.
func (j *ImportJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusPartial || j.Status == JobStatusFailed
}

// RemainingItems returns the count of selected items not yet resolved.
func (j *ImportJob) RemainingItems() int {
	return j.TotalItems - j.ImportedItems - j.FailedItems
}

// CreateImportJobRequest is the request for starting an import job
type CreateImportJobRequest struct {
	AccountID  string `json:"account_id" validate:"required,uuid"`
	TargetType string `json:"target_type" validate:"required,oneof=memorial family_tree user_media"`
}

// ImportJobResponse is the job detail returned to callers
type ImportJobResponse struct {
	Job   ImportJob `json:"job"`
	Items int       `json:"items,omitempty"`
}
