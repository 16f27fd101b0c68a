package importjob

import (
	"context"
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

const jobColumns = "id, account_id, user_id, source, target_type, status, total_items, imported_items, failed_items, error, started_at, completed_at, created_at, updated_at"

// Repository handles import job persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new import job repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new pending job for the account
func (r *Repository) Create(ctx context.Context, accountID, userID, source, targetType string) (*models.ImportJob, error) {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	job := models.ImportJob{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		UserID:     userID,
		Source:     source,
		TargetType: targetType,
		Status:     models.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("import_jobs")
	ib.Cols("id", "account_id", "user_id", "source", "target_type", "status", "total_items", "imported_items", "failed_items", "created_at", "updated_at")
	ib.Values(job.ID, job.AccountID, job.UserID, job.Source, job.TargetType, job.Status, 0, 0, 0, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"account_id": accountID}).Error("Failed to create import job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create import job")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": job.ID, "account_id": accountID}).Info("Created import job")
	return &job, nil
}

// Get retrieves an import job by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ImportJob, error) {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns)
	sb.From("import_jobs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var job models.ImportJob
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, models.ErrNotFound
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get import job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import job")
	}

	return &job, nil
}

// ListByUser retrieves a user's jobs, most recent first
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]models.ImportJob, error) {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.ListByUser")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 20
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns)
	sb.From("import_jobs")
	sb.Where(sb.Equal("user_id", userID))
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var jobs []models.ImportJob
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to list import jobs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list import jobs")
	}
	return jobs, nil
}

// TransitionStatus moves the job to a new status only if it currently holds one
// of the expected statuses. Returns ErrInvalidState when the guard fails, which
// keeps concurrent commit/retry calls from racing each other.
func (r *Repository) TransitionStatus(ctx context.Context, id, newStatus string, fromStatuses ...string) error {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.TransitionStatus")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("import_jobs")
	assigns := []string{sb.Assign("status", newStatus), sb.Assign("updated_at", now)}
	switch newStatus {
	case models.JobStatusProcessing:
		assigns = append(assigns, sb.Assign("started_at", now))
	case models.JobStatusCompleted, models.JobStatusPartial, models.JobStatusFailed:
		assigns = append(assigns, sb.Assign("completed_at", now))
	}
	sb.Set(assigns...)
	sb.Where(
		sb.Equal("id", id),
		sb.In("status", sqlbuilder.Flatten(fromStatuses)...),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": newStatus}).Error("Failed to transition job status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import job")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidState
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "status": newStatus}).Info("Transitioned job status")
	return nil
}

// SetTotal records the number of selected items at commit start
func (r *Repository) SetTotal(ctx context.Context, id string, total int) error {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.SetTotal")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("import_jobs")
	sb.Set(sb.Assign("total_items", total), sb.Assign("updated_at", now))
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "total": total}).Error("Failed to set job total")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import job")
	}
	return nil
}

// IncrementImported atomically bumps the imported counter. The guard clause
// enforces imported + failed <= total at the database level.
func (r *Repository) IncrementImported(ctx context.Context, id string) error {
	return r.incrementCounter(ctx, id, "imported_items")
}

// IncrementFailed atomically bumps the failed counter
func (r *Repository) IncrementFailed(ctx context.Context, id string) error {
	return r.incrementCounter(ctx, id, "failed_items")
}

func (r *Repository) incrementCounter(ctx context.Context, id, column string) error {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.incrementCounter")
	defer span.End()

	query := `
		UPDATE import_jobs
		SET ` + column + ` = ` + column + ` + 1, updated_at = $2
		WHERE id = $1
		  AND imported_items + failed_items < total_items
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "column": column}).Error("Failed to increment job counter")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import job")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidState
	}
	return nil
}

// ReleaseFailed subtracts n re-queued items from the failed counter before a
// retry pass re-attempts them
func (r *Repository) ReleaseFailed(ctx context.Context, id string, n int) error {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.ReleaseFailed")
	defer span.End()

	query := `
		UPDATE import_jobs
		SET failed_items = failed_items - $2, updated_at = $3
		WHERE id = $1
		  AND failed_items >= $2
	`

	result, err := r.db.ExecContext(ctx, query, id, n, time.Now().UTC())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "n": n}).Error("Failed to release failed counter")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import job")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidState
	}
	return nil
}

// SetError records a job-level failure message
func (r *Repository) SetError(ctx context.Context, id, message string) error {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.SetError")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("import_jobs")
	sb.Set(sb.Assign("error", message), sb.Assign("updated_at", now))
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to set job error")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import job")
	}
	return nil
}
