package models

import (
	"encoding/json"
	"time"
)

// Duplicate report statuses
const (
	ReportStatusPending   = "pending"
	ReportStatusConfirmed = "confirmed"
	ReportStatusMerged    = "merged"
	ReportStatusRejected  = "rejected"
)

// Resolve actions
const (
	ResolveActionMerge  = "merge"
	ResolveActionReject = "reject"
)

// DuplicateReport records one suspected duplicate pair of memorials. The pair
// is stored in canonical order (memorial_id_a < memorial_id_b) so an unordered
// pair maps to exactly one row.
// Field order matches schema: id, memorial_id_a, memorial_id_b, score, ...
type DuplicateReport struct {
	ID           string          `json:"id" db:"id"`
	MemorialIDA  string          `json:"memorial_id_a" db:"memorial_id_a"`
	MemorialIDB  string          `json:"memorial_id_b" db:"memorial_id_b"`
	Score        float64         `json:"score" db:"score"`
	FieldScores  json.RawMessage `json:"field_scores,omitempty" db:"field_scores"`
	Status       string          `json:"status" db:"status"`
	SurvivorID   *string         `json:"survivor_id,omitempty" db:"survivor_id"`
	ResolvedBy   *string         `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// IsResolved reports whether the pair has reached a terminal status.
func (r *DuplicateReport) IsResolved() bool {
	return r.Status == ReportStatusMerged || r.Status == ReportStatusRejected
}

// ResolveReportRequest resolves a duplicate report. SurvivorID is required for
// merge and must be one of the pair's memorial ids.
type ResolveReportRequest struct {
	Action     string `json:"action" validate:"required,oneof=merge reject"`
	SurvivorID string `json:"survivor_id" validate:"required_if=Action merge,omitempty,uuid"`
}

// DuplicateReportListResponse is the response for listing duplicate reports
type DuplicateReportListResponse struct {
	Items      []DuplicateReport `json:"items"`
	TotalCount int               `json:"total_count"`
}

// ScanResult summarizes one duplicate scan pass
type ScanResult struct {
	MemorialsScanned int `json:"memorials_scanned"`
	PairsCompared    int `json:"pairs_compared"`
	ReportsCreated   int `json:"reports_created"`
}
