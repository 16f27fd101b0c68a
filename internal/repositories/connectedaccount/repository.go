package connectedaccount

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

const accountColumns = "id, user_id, source, external_account_id, display_name, status, credentials, last_synced_at, created_at, updated_at, deleted_at"

// Repository handles connected account persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new connected account repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or re-activates the (user_id, source) account. Re-connecting a
// disconnected or stale account replaces its credentials and clears deleted_at.
func (r *Repository) Upsert(ctx context.Context, userID, source, externalAccountID, displayName string, credentials json.RawMessage) (*models.ConnectedAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "connectedaccount.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		INSERT INTO connected_accounts (
			id, user_id, source, external_account_id, display_name, status,
			credentials, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, source)
		DO UPDATE SET
			external_account_id = EXCLUDED.external_account_id,
			display_name = EXCLUDED.display_name,
			status = EXCLUDED.status,
			credentials = EXCLUDED.credentials,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
		RETURNING ` + accountColumns

	var account models.ConnectedAccount
	err := r.db.GetContext(ctx, &account, query,
		id, userID, source, externalAccountID, displayName, models.AccountStatusActive,
		credentials, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID, "source": source}).Error("Failed to upsert connected account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert connected account")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": account.ID, "source": source}).Info("Connected account")
	return &account, nil
}

// Get retrieves a connected account by ID. Soft-deleted accounts are not returned.
func (r *Repository) Get(ctx context.Context, id string) (*models.ConnectedAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "connectedaccount.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(accountColumns)
	sb.From("connected_accounts")
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var account models.ConnectedAccount
	if err := r.db.GetContext(ctx, &account, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, models.ErrNotFound
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get connected account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get connected account")
	}

	return &account, nil
}

// ListByUser retrieves a user's connected accounts, most recent first
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]models.ConnectedAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "connectedaccount.Repository.ListByUser")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(accountColumns)
	sb.From("connected_accounts")
	sb.Where(
		sb.Equal("user_id", userID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var accounts []models.ConnectedAccount
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to list connected accounts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connected accounts")
	}
	return accounts, nil
}

// SetStatus updates the account status (active/stale)
func (r *Repository) SetStatus(ctx context.Context, id, status string) error {
	ctx, span := tracing.StartSpan(ctx, "connectedaccount.Repository.SetStatus")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("connected_accounts")
	sb.Set(sb.Assign("status", status), sb.Assign("updated_at", now))
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to set account status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update account")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// TouchLastSynced records a successful sync
func (r *Repository) TouchLastSynced(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "connectedaccount.Repository.TouchLastSynced")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("connected_accounts")
	sb.Set(sb.Assign("last_synced_at", now), sb.Assign("updated_at", now))
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to touch last_synced_at")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update account")
	}
	return nil
}

// SoftDelete disconnects an account. The row is kept for job history; staged
// items and past jobs are untouched.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "connectedaccount.Repository.SoftDelete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("connected_accounts")
	sb.Set(
		sb.Assign("status", models.AccountStatusDisconnected),
		sb.Assign("credentials", nil),
		sb.Assign("deleted_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to disconnect account")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to disconnect account")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrNotFound
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Disconnected account")
	return nil
}
