// Package pipeline runs import jobs: fetching source content into staged
// items and committing selected items to the platform.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/accounts"
	"github.com/Ramsey-B/willow/pkg/connectors"
	"github.com/Ramsey-B/willow/pkg/fingerprint"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// fetchBatchSize is how many fetched items are staged per insert
const fetchBatchSize = 100

// JobStore is the import job persistence surface the pipeline needs
type JobStore interface {
	Create(ctx context.Context, accountID, userID, source, targetType string) (*models.ImportJob, error)
	Get(ctx context.Context, id string) (*models.ImportJob, error)
	TransitionStatus(ctx context.Context, id, newStatus string, fromStatuses ...string) error
	SetTotal(ctx context.Context, id string, total int) error
	IncrementImported(ctx context.Context, id string) error
	IncrementFailed(ctx context.Context, id string) error
	ReleaseFailed(ctx context.Context, id string, n int) error
	SetError(ctx context.Context, id, message string) error
}

// ItemStore is the staged item persistence surface the pipeline needs
type ItemStore interface {
	InsertBatch(ctx context.Context, jobID string, items []models.StagedItem) (int, error)
	ListSelectedPending(ctx context.Context, jobID string) ([]models.StagedItem, error)
	MarkSucceeded(ctx context.Context, id string, targetID *string, skipped bool) error
	MarkFailed(ctx context.Context, id, message string) error
	ResetFailed(ctx context.Context, jobID string) (int, error)
}

// Fetcher starts import jobs and pulls source content into staged items
type Fetcher struct {
	jobs     JobStore
	items    ItemStore
	accounts *accounts.Service
	logger   ectologger.Logger
}

// NewFetcher creates the fetch side of the pipeline
func NewFetcher(jobs JobStore, items ItemStore, accountService *accounts.Service, logger ectologger.Logger) *Fetcher {
	return &Fetcher{
		jobs:     jobs,
		items:    items,
		accounts: accountService,
		logger:   logger,
	}
}

// StartJob creates a pending job for the account and fetches its content in
// the background. The returned job is pending; callers poll it while the
// fetch stages items.
func (f *Fetcher) StartJob(ctx context.Context, accountID, userID, targetType string) (*models.ImportJob, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Fetcher.StartJob")
	defer span.End()

	if !models.ValidJobTarget(targetType) {
		return nil, models.ErrValidation
	}

	account, connector, err := f.accounts.GetSyncable(ctx, accountID, userID)
	if err != nil {
		metrics.RecordSync("unknown", "rejected")
		return nil, err
	}

	job, err := f.jobs.Create(ctx, account.ID, userID, account.Source, targetType)
	if err != nil {
		return nil, err
	}

	// The request context dies with the HTTP request; the fetch keeps going.
	go f.runFetch(context.Background(), job, account, connector)

	return job, nil
}

func (f *Fetcher) runFetch(ctx context.Context, job *models.ImportJob, account *models.ConnectedAccount, connector connectors.Connector) {
	log := f.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":     job.ID,
		"account_id": account.ID,
		"source":     account.Source,
	})

	seq, err := connector.Fetch(ctx, account.Credentials)
	if err != nil {
		f.failFetch(ctx, job, account, 0, err)
		return
	}

	staged := 0
	batch := make([]models.StagedItem, 0, fetchBatchSize)
	for {
		content, err := seq.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// No rollback on a partial fetch: what was retrieved stays staged.
			if len(batch) > 0 {
				if n, insertErr := f.items.InsertBatch(ctx, job.ID, batch); insertErr == nil {
					staged += n
				}
			}
			f.failFetch(ctx, job, account, staged, err)
			return
		}

		item, err := contentToItem(content)
		if err != nil {
			log.WithError(err).WithFields(map[string]any{"source_item_id": content.SourceItemID}).Warn("Skipping unmappable item")
			continue
		}

		batch = append(batch, *item)
		if len(batch) >= fetchBatchSize {
			n, err := f.items.InsertBatch(ctx, job.ID, batch)
			if err != nil {
				f.failFetch(ctx, job, account, staged, err)
				return
			}
			staged += n
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		n, err := f.items.InsertBatch(ctx, job.ID, batch)
		if err != nil {
			f.failFetch(ctx, job, account, staged, err)
			return
		}
		staged += n
	}

	f.closeStaging(ctx, job, staged, log)

	if err := f.accounts.TouchLastSynced(ctx, account.ID); err != nil {
		log.WithError(err).Error("Failed to record sync time")
	}

	metrics.FetchedItemsTotal.WithLabelValues(account.Source).Add(float64(staged))
	metrics.RecordSync(account.Source, "ok")
	log.WithFields(map[string]any{"staged": staged}).Info("Fetch finished")
}

// closeStaging freezes the job's total at what was actually staged and moves
// it out of pending. An empty fetch has nothing to commit and completes the
// job directly.
func (f *Fetcher) closeStaging(ctx context.Context, job *models.ImportJob, staged int, log ectologger.Logger) {
	if err := f.jobs.SetTotal(ctx, job.ID, staged); err != nil {
		log.WithError(err).Error("Failed to set job total")
		return
	}

	next := models.JobStatusProcessing
	if staged == 0 {
		next = models.JobStatusCompleted
	}
	if err := f.jobs.TransitionStatus(ctx, job.ID, next, models.JobStatusPending); err != nil {
		log.WithError(err).Error("Failed to close staging")
	}
}

// failFetch records a fetch failure on the job. Stale credentials also flag
// the account so further syncs are rejected until it is re-connected. A
// failure with items already staged keeps the job committable: the user can
// still import what was retrieved.
func (f *Fetcher) failFetch(ctx context.Context, job *models.ImportJob, account *models.ConnectedAccount, staged int, cause error) {
	log := f.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{
		"job_id":     job.ID,
		"account_id": account.ID,
		"source":     account.Source,
		"staged":     staged,
	})
	log.Error("Fetch failed")
	metrics.RecordSync(account.Source, "failed")

	if errors.Is(cause, models.ErrStaleCredentials) {
		if err := f.accounts.MarkStale(ctx, account.ID); err != nil {
			log.WithError(err).Error("Failed to mark account stale")
		}
	}

	if err := f.jobs.SetError(ctx, job.ID, cause.Error()); err != nil {
		log.WithError(err).Error("Failed to record job error")
	}

	if staged > 0 {
		if err := f.jobs.SetTotal(ctx, job.ID, staged); err != nil {
			log.WithError(err).Error("Failed to set job total")
		}
		if err := f.jobs.TransitionStatus(ctx, job.ID, models.JobStatusProcessing, models.JobStatusPending); err != nil {
			log.WithError(err).Error("Failed to close staging")
		}
		return
	}

	if err := f.jobs.TransitionStatus(ctx, job.ID, models.JobStatusFailed, models.JobStatusPending); err != nil {
		log.WithError(err).Error("Failed to fail job")
	}
}

// contentToItem converts one normalized content item into a staged item with
// its content fingerprint
func contentToItem(content *models.NormalizedContent) (*models.StagedItem, error) {
	data := content.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	fp, err := fingerprint.GenerateFromJSON(data)
	if err != nil {
		return nil, err
	}

	return &models.StagedItem{
		SourceItemID: content.SourceItemID,
		ContentType:  content.ContentType,
		Title:        content.Title,
		Data:         data,
		Fingerprint:  fp,
	}, nil
}
