package duplicatereport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

const reportColumns = "id, memorial_id_a, memorial_id_b, score, field_scores, status, survivor_id, resolved_by, resolved_at, created_at, updated_at"

// Repository handles duplicate report persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new duplicate report repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert records a suspected pair. The pair is canonicalized before insert and
// an existing report for the same pair is left untouched, so repeated scans
// never duplicate or reopen reports. Returns (nil, nil) when the pair already
// has a report.
func (r *Repository) Insert(ctx context.Context, memorialIDA, memorialIDB string, score float64, fieldScores json.RawMessage) (*models.DuplicateReport, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatereport.Repository.Insert")
	defer span.End()

	a, b := CanonicalPair(memorialIDA, memorialIDB)
	now := time.Now().UTC()

	query := `
		INSERT INTO duplicate_reports (
			id, memorial_id_a, memorial_id_b, score, field_scores, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (memorial_id_a, memorial_id_b) DO NOTHING
		RETURNING ` + reportColumns

	var report models.DuplicateReport
	err := r.db.GetContext(ctx, &report, query,
		uuid.New().String(), a, b, score, fieldScores, models.ReportStatusPending, now, now,
	)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"memorial_id_a": a, "memorial_id_b": b}).Error("Failed to insert duplicate report")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert duplicate report")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": report.ID, "score": score}).Info("Created duplicate report")
	return &report, nil
}

// Get retrieves a duplicate report by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.DuplicateReport, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatereport.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(reportColumns)
	sb.From("duplicate_reports")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var report models.DuplicateReport
	if err := r.db.GetContext(ctx, &report, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, models.ErrNotFound
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get duplicate report")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate report")
	}

	return &report, nil
}

// List retrieves reports, optionally filtered by status, highest score first
func (r *Repository) List(ctx context.Context, status *string, limit int) ([]models.DuplicateReport, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatereport.Repository.List")
	defer span.End()

	if limit < 1 || limit > 200 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(reportColumns)
	sb.From("duplicate_reports")
	if status != nil {
		sb.Where(sb.Equal("status", *status))
	}
	sb.OrderBy("score DESC", "created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var reports []models.DuplicateReport
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"status": status}).Error("Failed to list duplicate reports")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate reports")
	}
	return reports, nil
}

// ListOpenForMemorial returns unresolved reports touching the given memorial.
// Used after a merge to close out reports referencing the absorbed memorial.
func (r *Repository) ListOpenForMemorial(ctx context.Context, memorialID string) ([]models.DuplicateReport, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatereport.Repository.ListOpenForMemorial")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(reportColumns)
	sb.From("duplicate_reports")
	sb.Where(
		sb.Or(sb.Equal("memorial_id_a", memorialID), sb.Equal("memorial_id_b", memorialID)),
		sb.In("status", models.ReportStatusPending, models.ReportStatusConfirmed),
	)

	query, args := sb.Build()
	var reports []models.DuplicateReport
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"memorial_id": memorialID}).Error("Failed to list open reports for memorial")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate reports")
	}
	return reports, nil
}

// Resolve moves a report to merged or rejected. Only pending or confirmed
// reports can be resolved; a second resolve returns ErrInvalidState.
func (r *Repository) Resolve(ctx context.Context, id, status string, survivorID *string, resolvedBy string) (*models.DuplicateReport, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatereport.Repository.Resolve")
	defer span.End()

	query := `
		UPDATE duplicate_reports
		SET status = $2, survivor_id = $3, resolved_by = $4, resolved_at = $5, updated_at = $5
		WHERE id = $1
		  AND status IN ($6, $7)
		RETURNING ` + reportColumns

	var report models.DuplicateReport
	err := r.db.GetContext(ctx, &report, query,
		id, status, survivorID, resolvedBy, time.Now().UTC(),
		models.ReportStatusPending, models.ReportStatusConfirmed,
	)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, models.ErrInvalidState
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to resolve duplicate report")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve duplicate report")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "status": status}).Info("Resolved duplicate report")
	return &report, nil
}
