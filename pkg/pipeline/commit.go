package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/fingerprint"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/target"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// Committer pushes a job's selected items to the platform with a bounded
// worker pool
type Committer struct {
	jobs    JobStore
	items   ItemStore
	target  target.Client
	emitter *events.Emitter
	workers int
	logger  ectologger.Logger
}

// NewCommitter creates the commit side of the pipeline
func NewCommitter(jobs JobStore, items ItemStore, targetClient target.Client, emitter *events.Emitter, workers int, logger ectologger.Logger) *Committer {
	if workers < 1 {
		workers = 4
	}
	return &Committer{
		jobs:    jobs,
		items:   items,
		target:  targetClient,
		emitter: emitter,
		workers: workers,
		logger:  logger,
	}
}

// Commit runs a commit pass over a job's selected items. Valid only while
// the job is processing: staging is closed before commit begins and a
// finished job returns ErrInvalidState. Re-submitting a commit is safe; items
// already succeeded or failed are guarded per item and never double-counted.
func (c *Committer) Commit(ctx context.Context, jobID, userID string) (*models.CommitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Committer.Commit")
	defer span.End()

	job, err := c.loadOwned(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}

	if job.Status != models.JobStatusProcessing {
		return nil, models.ErrInvalidState
	}

	return c.runPass(ctx, job)
}

// Retry re-attempts a job's failed items. Valid only from partial or failed;
// succeeded items are never re-sent, so retrying a fully completed job is a
// no-op rejected with ErrInvalidState.
func (c *Committer) Retry(ctx context.Context, jobID, userID string) (*models.CommitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Committer.Retry")
	defer span.End()

	job, err := c.loadOwned(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job.FailedItems == 0 {
		return nil, models.ErrInvalidState
	}

	if err := c.jobs.TransitionStatus(ctx, jobID, models.JobStatusProcessing, models.JobStatusPartial, models.JobStatusFailed); err != nil {
		return nil, err
	}

	requeued, err := c.items.ResetFailed(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if requeued > 0 {
		if err := c.jobs.ReleaseFailed(ctx, jobID, requeued); err != nil {
			return nil, err
		}
	}

	return c.runPass(ctx, job)
}

func (c *Committer) loadOwned(ctx context.Context, jobID, userID string) (*models.ImportJob, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, models.ErrNotFound
	}
	return job, nil
}

// passCounters aggregates worker outcomes for the result summary. The job row
// counters are the source of truth; these only feed the response.
type passCounters struct {
	mu        sync.Mutex
	attempted int
	imported  int
	skipped   int
	failed    int
}

func (c *Committer) runPass(ctx context.Context, job *models.ImportJob) (*models.CommitResult, error) {
	start := time.Now()
	log := c.logger.WithContext(ctx).WithFields(map[string]any{"job_id": job.ID, "source": job.Source})

	pending, err := c.items.ListSelectedPending(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	counters := &passCounters{}
	work := make(chan models.StagedItem)
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				c.commitItem(ctx, job, item, counters)
			}
		}()
	}

	for _, item := range pending {
		work <- item
	}
	close(work)
	wg.Wait()

	updated, err := c.jobs.Get(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	finalStatus := ComputeStatus(updated.TotalItems, updated.ImportedItems, updated.FailedItems)
	if err := c.jobs.TransitionStatus(ctx, job.ID, finalStatus, models.JobStatusProcessing); err != nil {
		return nil, err
	}
	updated.Status = finalStatus

	metrics.RecordJobFinished(job.Source, finalStatus, time.Since(start).Seconds())
	if c.emitter != nil {
		c.emitter.EmitJobFinished(ctx, updated)
	}

	log.WithFields(map[string]any{
		"status":    finalStatus,
		"attempted": counters.attempted,
		"imported":  counters.imported,
		"skipped":   counters.skipped,
		"failed":    counters.failed,
	}).Info("Commit pass finished")

	return &models.CommitResult{
		JobID:     job.ID,
		Status:    finalStatus,
		Attempted: counters.attempted,
		Imported:  counters.imported,
		Skipped:   counters.skipped,
		Failed:    counters.failed,
	}, nil
}

// commitItem attempts one item. A conflict from the platform means the record
// already exists, which counts as an imported item marked skipped.
func (c *Committer) commitItem(ctx context.Context, job *models.ImportJob, item models.StagedItem, counters *passCounters) {
	log := c.logger.WithContext(ctx).WithFields(map[string]any{"job_id": job.ID, "item_id": item.ID})

	record := &models.TargetRecord{
		DedupeKey:   fingerprint.DedupeKey(job.Source, item.SourceItemID, item.Fingerprint),
		TargetType:  job.TargetType,
		ContentType: item.ContentType,
		Title:       item.Title,
		OwnerID:     job.UserID,
		Source:      job.Source,
		Data:        item.Data,
	}

	targetID, err := c.target.CreateRecord(ctx, record)
	switch {
	case err == nil:
		if err := c.items.MarkSucceeded(ctx, item.ID, &targetID, false); err != nil {
			log.WithError(err).Error("Failed to mark item succeeded")
			return
		}
		if err := c.jobs.IncrementImported(ctx, job.ID); err != nil {
			log.WithError(err).Error("Failed to increment imported counter")
		}
		metrics.RecordItemCommit(job.Source, "imported")
		counters.record(func(p *passCounters) { p.imported++ })

	case errors.Is(err, models.ErrConflict):
		if err := c.items.MarkSucceeded(ctx, item.ID, nil, true); err != nil {
			log.WithError(err).Error("Failed to mark item skipped")
			return
		}
		if err := c.jobs.IncrementImported(ctx, job.ID); err != nil {
			log.WithError(err).Error("Failed to increment imported counter")
		}
		metrics.RecordItemCommit(job.Source, "skipped")
		counters.record(func(p *passCounters) { p.skipped++ })

	default:
		log.WithError(err).Warn("Item commit failed")
		if err := c.items.MarkFailed(ctx, item.ID, err.Error()); err != nil {
			log.WithError(err).Error("Failed to mark item failed")
			return
		}
		if err := c.jobs.IncrementFailed(ctx, job.ID); err != nil {
			log.WithError(err).Error("Failed to increment failed counter")
		}
		metrics.RecordItemCommit(job.Source, "failed")
		counters.record(func(p *passCounters) { p.failed++ })
	}

	counters.record(func(p *passCounters) { p.attempted++ })
}

func (p *passCounters) record(fn func(*passCounters)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}
