// Package events handles event emission for import and duplicate lifecycle changes
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/kafka"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Event types
const (
	EventJobCompleted  = "import.job.completed"
	EventJobPartial    = "import.job.partial"
	EventJobFailed     = "import.job.failed"
	EventReportCreated = "duplicate.report.created"
	EventReportMerged  = "duplicate.report.merged"
)

// JobEvent announces a finished import job
type JobEvent struct {
	EventType     string    `json:"event_type"`
	JobID         string    `json:"job_id"`
	AccountID     string    `json:"account_id"`
	UserID        string    `json:"user_id"`
	Source        string    `json:"source"`
	TotalItems    int       `json:"total_items"`
	ImportedItems int       `json:"imported_items"`
	FailedItems   int       `json:"failed_items"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReportEvent announces a duplicate report lifecycle change
type ReportEvent struct {
	EventType   string    `json:"event_type"`
	ReportID    string    `json:"report_id"`
	MemorialIDA string    `json:"memorial_id_a"`
	MemorialIDB string    `json:"memorial_id_b"`
	Score       float64   `json:"score"`
	SurvivorID  string    `json:"survivor_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Emitter publishes lifecycle events for downstream consumers (notifications,
// analytics). Emission failures are logged but never fail the operation that
// produced them.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitJobFinished emits the terminal event for a job based on its status
func (e *Emitter) EmitJobFinished(ctx context.Context, job *models.ImportJob) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitJobFinished")
	defer span.End()

	var eventType string
	switch job.Status {
	case models.JobStatusCompleted:
		eventType = EventJobCompleted
	case models.JobStatusPartial:
		eventType = EventJobPartial
	case models.JobStatusFailed:
		eventType = EventJobFailed
	default:
		return
	}

	event := JobEvent{
		EventType:     eventType,
		JobID:         job.ID,
		AccountID:     job.AccountID,
		UserID:        job.UserID,
		Source:        job.Source,
		TotalItems:    job.TotalItems,
		ImportedItems: job.ImportedItems,
		FailedItems:   job.FailedItems,
		Timestamp:     time.Now().UTC(),
	}

	e.publish(ctx, job.ID, eventType, event)
}

// EmitReportCreated emits a duplicate.report.created event
func (e *Emitter) EmitReportCreated(ctx context.Context, report *models.DuplicateReport) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitReportCreated")
	defer span.End()

	event := ReportEvent{
		EventType:   EventReportCreated,
		ReportID:    report.ID,
		MemorialIDA: report.MemorialIDA,
		MemorialIDB: report.MemorialIDB,
		Score:       report.Score,
		Timestamp:   time.Now().UTC(),
	}

	e.publish(ctx, report.ID, EventReportCreated, event)
}

// EmitReportMerged emits a duplicate.report.merged event
func (e *Emitter) EmitReportMerged(ctx context.Context, report *models.DuplicateReport) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitReportMerged")
	defer span.End()

	event := ReportEvent{
		EventType:   EventReportMerged,
		ReportID:    report.ID,
		MemorialIDA: report.MemorialIDA,
		MemorialIDB: report.MemorialIDB,
		Score:       report.Score,
		Timestamp:   time.Now().UTC(),
	}
	if report.SurvivorID != nil {
		event.SurvivorID = *report.SurvivorID
	}

	e.publish(ctx, report.ID, EventReportMerged, event)
}

func (e *Emitter) publish(ctx context.Context, key, eventType string, event any) {
	if e.producer == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"event_type": eventType}).Error("Failed to marshal event")
		return
	}

	headers := map[string]string{
		"event_type":     eventType,
		"schema_version": SchemaVersion,
	}
	if err := e.producer.Publish(ctx, key, data, headers); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"event_type": eventType, "key": key}).Error("Failed to emit event")
	}
}
