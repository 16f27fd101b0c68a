package stageditem

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

const itemColumns = "id, job_id, source_item_id, content_type, title, data, fingerprint, selected, commit_status, skipped, commit_error, target_id, created_at, updated_at"

// Repository handles staged item persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new staged item repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertBatch stages a batch of fetched items for a job. Items default to
// selected so the common "import everything" path needs no toggles. Duplicate
// (job_id, source_item_id) pairs within a fetch are dropped on conflict.
func (r *Repository) InsertBatch(ctx context.Context, jobID string, items []models.StagedItem) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "stageditem.Repository.InsertBatch")
	defer span.End()

	if len(items) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("staged_items")
	ib.Cols("id", "job_id", "source_item_id", "content_type", "title", "data", "fingerprint", "selected", "commit_status", "skipped", "created_at", "updated_at")
	for _, item := range items {
		ib.Values(uuid.New().String(), jobID, item.SourceItemID, item.ContentType, item.Title, item.Data, item.Fingerprint, true, models.CommitStatusPending, false, now, now)
	}

	query, args := ib.Build()
	query += " ON CONFLICT (job_id, source_item_id) DO NOTHING"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID, "count": len(items)}).Error("Failed to insert staged items")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to stage items")
	}

	rows, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{"job_id": jobID, "count": rows}).Info("Staged items")
	return int(rows), nil
}

// Get retrieves a staged item by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.StagedItem, error) {
	ctx, span := tracing.StartSpan(ctx, "stageditem.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemColumns)
	sb.From("staged_items")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var item models.StagedItem
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, models.ErrNotFound
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get staged item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staged item")
	}

	return &item, nil
}

// ListByJob retrieves a job's staged items with pagination, optionally filtered
// by content type
func (r *Repository) ListByJob(ctx context.Context, jobID string, contentType *string, page, pageSize int) (*models.StagedItemListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "stageditem.Repository.ListByJob")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("staged_items")
	countWhere := []string{countSb.Equal("job_id", jobID)}
	if contentType != nil {
		countWhere = append(countWhere, countSb.Equal("content_type", *contentType))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID}).Error("Failed to count staged items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count staged items")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemColumns)
	sb.From("staged_items")
	where := []string{sb.Equal("job_id", jobID)}
	if contentType != nil {
		where = append(where, sb.Equal("content_type", *contentType))
	}
	sb.Where(where...)
	sb.OrderBy("created_at ASC", "id ASC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var items []models.StagedItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID, "page": page, "page_size": pageSize}).Error("Failed to list staged items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staged items")
	}

	return &models.StagedItemListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// SetSelected flips the durable selection flag. Only items still pending commit
// can be toggled; committed or failed items return ErrInvalidState.
func (r *Repository) SetSelected(ctx context.Context, id string, selected bool) (*models.StagedItem, error) {
	ctx, span := tracing.StartSpan(ctx, "stageditem.Repository.SetSelected")
	defer span.End()

	query := `
		UPDATE staged_items
		SET selected = $2, updated_at = $3
		WHERE id = $1
		  AND commit_status = $4
		RETURNING ` + itemColumns

	var item models.StagedItem
	err := r.db.GetContext(ctx, &item, query, id, selected, time.Now().UTC(), models.CommitStatusPending)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, models.ErrInvalidState
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "selected": selected}).Error("Failed to toggle staged item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to toggle staged item")
	}

	return &item, nil
}

// ListSelectedPending returns the items a commit pass must attempt: selected
// and not yet succeeded or failed
func (r *Repository) ListSelectedPending(ctx context.Context, jobID string) ([]models.StagedItem, error) {
	ctx, span := tracing.StartSpan(ctx, "stageditem.Repository.ListSelectedPending")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemColumns)
	sb.From("staged_items")
	sb.Where(
		sb.Equal("job_id", jobID),
		sb.Equal("selected", true),
		sb.Equal("commit_status", models.CommitStatusPending),
	)
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var items []models.StagedItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID}).Error("Failed to list pending staged items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staged items")
	}
	return items, nil
}

// MarkSucceeded records a successful commit. Skipped marks conflict outcomes
// where the target already held the record.
func (r *Repository) MarkSucceeded(ctx context.Context, id string, targetID *string, skipped bool) error {
	ctx, span := tracing.StartSpan(ctx, "stageditem.Repository.MarkSucceeded")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("staged_items")
	sb.Set(
		sb.Assign("commit_status", models.CommitStatusSucceeded),
		sb.Assign("skipped", skipped),
		sb.Assign("target_id", targetID),
		sb.Assign("commit_error", nil),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("commit_status", models.CommitStatusPending),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to mark staged item succeeded")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update staged item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidState
	}
	return nil
}

// MarkFailed records a commit failure with its message
func (r *Repository) MarkFailed(ctx context.Context, id, message string) error {
	ctx, span := tracing.StartSpan(ctx, "stageditem.Repository.MarkFailed")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("staged_items")
	sb.Set(
		sb.Assign("commit_status", models.CommitStatusFailed),
		sb.Assign("commit_error", message),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("commit_status", models.CommitStatusPending),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to mark staged item failed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update staged item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidState
	}
	return nil
}

// ResetFailed re-queues a job's failed items for another commit pass and
// returns how many were re-queued. Succeeded items are never touched, which
// keeps retries idempotent.
func (r *Repository) ResetFailed(ctx context.Context, jobID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "stageditem.Repository.ResetFailed")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("staged_items")
	sb.Set(
		sb.Assign("commit_status", models.CommitStatusPending),
		sb.Assign("commit_error", nil),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("job_id", jobID),
		sb.Equal("commit_status", models.CommitStatusFailed),
		sb.Equal("selected", true),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID}).Error("Failed to reset failed items")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reset staged items")
	}

	rows, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{"job_id": jobID, "count": rows}).Info("Re-queued failed items")
	return int(rows), nil
}
