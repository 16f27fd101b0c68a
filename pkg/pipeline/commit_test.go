package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*models.ImportJob
	seq  int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*models.ImportJob)}
}

func (f *fakeJobs) Create(ctx context.Context, accountID, userID, source, targetType string) (*models.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	job := &models.ImportJob{
		ID:         fmt.Sprintf("job-%d", f.seq),
		AccountID:  accountID,
		UserID:     userID,
		Source:     source,
		TargetType: targetType,
		Status:     models.JobStatusPending,
	}
	f.jobs[job.ID] = job
	copied := *job
	return &copied, nil
}

func (f *fakeJobs) Get(ctx context.Context, id string) (*models.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobs) TransitionStatus(ctx context.Context, id, newStatus string, fromStatuses ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	for _, from := range fromStatuses {
		if job.Status == from {
			job.Status = newStatus
			return nil
		}
	}
	return models.ErrInvalidState
}

func (f *fakeJobs) SetTotal(ctx context.Context, id string, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	job.TotalItems = total
	return nil
}

func (f *fakeJobs) IncrementImported(ctx context.Context, id string) error {
	return f.increment(id, func(job *models.ImportJob) { job.ImportedItems++ })
}

func (f *fakeJobs) IncrementFailed(ctx context.Context, id string) error {
	return f.increment(id, func(job *models.ImportJob) { job.FailedItems++ })
}

// increment mirrors the database guard: counters never pass the total
func (f *fakeJobs) increment(id string, apply func(*models.ImportJob)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	if job.ImportedItems+job.FailedItems >= job.TotalItems {
		return models.ErrInvalidState
	}
	apply(job)
	return nil
}

func (f *fakeJobs) ReleaseFailed(ctx context.Context, id string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	if job.FailedItems < n {
		return models.ErrInvalidState
	}
	job.FailedItems -= n
	return nil
}

func (f *fakeJobs) SetError(ctx context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	job.Error = &message
	return nil
}

type fakeItems struct {
	mu    sync.Mutex
	items []*models.StagedItem
	seq   int
}

func newFakeItems() *fakeItems {
	return &fakeItems{}
}

func (f *fakeItems) InsertBatch(ctx context.Context, jobID string, items []models.StagedItem) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inserted := 0
	for _, item := range items {
		if f.find(jobID, item.SourceItemID) != nil {
			continue
		}
		f.seq++
		copied := item
		copied.ID = fmt.Sprintf("item-%d", f.seq)
		copied.JobID = jobID
		copied.Selected = true
		copied.CommitStatus = models.CommitStatusPending
		f.items = append(f.items, &copied)
		inserted++
	}
	return inserted, nil
}

func (f *fakeItems) find(jobID, sourceItemID string) *models.StagedItem {
	for _, item := range f.items {
		if item.JobID == jobID && item.SourceItemID == sourceItemID {
			return item
		}
	}
	return nil
}

func (f *fakeItems) get(id string) *models.StagedItem {
	for _, item := range f.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (f *fakeItems) ListSelectedPending(ctx context.Context, jobID string) ([]models.StagedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.StagedItem
	for _, item := range f.items {
		if item.JobID == jobID && item.Selected && item.CommitStatus == models.CommitStatusPending {
			result = append(result, *item)
		}
	}
	return result, nil
}

func (f *fakeItems) MarkSucceeded(ctx context.Context, id string, targetID *string, skipped bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.get(id)
	if item == nil {
		return models.ErrNotFound
	}
	if item.CommitStatus != models.CommitStatusPending {
		return models.ErrInvalidState
	}
	item.CommitStatus = models.CommitStatusSucceeded
	item.Skipped = skipped
	item.TargetID = targetID
	item.CommitError = nil
	return nil
}

func (f *fakeItems) MarkFailed(ctx context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.get(id)
	if item == nil {
		return models.ErrNotFound
	}
	if item.CommitStatus != models.CommitStatusPending {
		return models.ErrInvalidState
	}
	item.CommitStatus = models.CommitStatusFailed
	item.CommitError = &message
	return nil
}

func (f *fakeItems) ResetFailed(ctx context.Context, jobID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, item := range f.items {
		if item.JobID == jobID && item.Selected && item.CommitStatus == models.CommitStatusFailed {
			item.CommitStatus = models.CommitStatusPending
			item.CommitError = nil
			count++
		}
	}
	return count, nil
}

func (f *fakeItems) setSelected(id string, selected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item := f.get(id); item != nil {
		item.Selected = selected
	}
}

// fakeTarget fails or conflicts by record title and counts attempts per title
type fakeTarget struct {
	mu          sync.Mutex
	failing     map[string]bool
	conflicts   map[string]bool
	attempts    map[string]int
	targetTypes map[string]string
	merges      [][2]string
	memorials   [][]models.Memorial
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		failing:     make(map[string]bool),
		conflicts:   make(map[string]bool),
		attempts:    make(map[string]int),
		targetTypes: make(map[string]string),
	}
}

func (f *fakeTarget) CreateRecord(ctx context.Context, record *models.TargetRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[record.Title]++
	f.targetTypes[record.Title] = record.TargetType
	if f.failing[record.Title] {
		return "", models.ErrUpstreamUnavailable
	}
	if f.conflicts[record.Title] {
		return "", models.ErrConflict
	}
	return "target-" + record.Title, nil
}

func (f *fakeTarget) ListMemorials(ctx context.Context, page, pageSize int) ([]models.Memorial, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if page < 1 || page > len(f.memorials) {
		return nil, nil
	}
	return f.memorials[page-1], nil
}

func (f *fakeTarget) MergeMemorials(ctx context.Context, survivorID, absorbedID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merges = append(f.merges, [2]string{survivorID, absorbedID})
	return nil
}

func (f *fakeTarget) attemptCount(title string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[title]
}

func (f *fakeTarget) targetType(title string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targetTypes[title]
}

func stagedContent(n int) []models.StagedItem {
	items := make([]models.StagedItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, models.StagedItem{
			SourceItemID: fmt.Sprintf("src-%d", i),
			ContentType:  models.ContentTypePhoto,
			Title:        fmt.Sprintf("photo-%d", i),
			Data:         json.RawMessage(`{}`),
			Fingerprint:  fmt.Sprintf("fp-%d", i),
		})
	}
	return items
}

// stageJob creates a job that has finished its fetch: items staged, total
// frozen, status processing
func stageJob(t *testing.T, jobs *fakeJobs, items *fakeItems, userID string, count int) *models.ImportJob {
	t.Helper()
	ctx := context.Background()

	job, err := jobs.Create(ctx, "account-1", userID, "csv", models.JobTargetMemorial)
	require.NoError(t, err)

	staged, err := items.InsertBatch(ctx, job.ID, stagedContent(count))
	require.NoError(t, err)
	require.Equal(t, count, staged)

	require.NoError(t, jobs.SetTotal(ctx, job.ID, count))
	next := models.JobStatusProcessing
	if count == 0 {
		next = models.JobStatusCompleted
	}
	require.NoError(t, jobs.TransitionStatus(ctx, job.ID, next, models.JobStatusPending))

	job, err = jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	return job
}

func TestCommit_ImportsSelectedItems(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobs()
	items := newFakeItems()
	targetClient := newFakeTarget()

	job := stageJob(t, jobs, items, "user-1", 10)

	// Deselect three items before committing
	pending, err := items.ListSelectedPending(ctx, job.ID)
	require.NoError(t, err)
	for _, item := range pending[:3] {
		items.setSelected(item.ID, false)
	}

	committer := NewCommitter(jobs, items, targetClient, nil, 2, noopLogger())
	result, err := committer.Commit(ctx, job.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, 7, result.Attempted)
	assert.Equal(t, 7, result.Imported)
	assert.Zero(t, result.Failed)

	updated, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, updated.Status)
	assert.Equal(t, 10, updated.TotalItems)
	assert.Equal(t, 7, updated.ImportedItems)
	assert.Zero(t, updated.FailedItems)

	// Deselected items were never attempted
	for _, item := range pending[:3] {
		assert.Zero(t, targetClient.attemptCount(item.Title))
		assert.Equal(t, models.CommitStatusPending, items.get(item.ID).CommitStatus)
	}
}

func TestCommit_PartialFailureThenRetry(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobs()
	items := newFakeItems()
	targetClient := newFakeTarget()
	targetClient.failing["photo-1"] = true
	targetClient.failing["photo-3"] = true

	job := stageJob(t, jobs, items, "user-1", 5)
	committer := NewCommitter(jobs, items, targetClient, nil, 2, noopLogger())

	result, err := committer.Commit(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPartial, result.Status)
	assert.Equal(t, 5, result.Attempted)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 2, result.Failed)

	updated, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.ImportedItems)
	assert.Equal(t, 2, updated.FailedItems)

	// The upstream recovers; retry must re-send exactly the failed subset
	targetClient.failing = map[string]bool{}

	retry, err := committer.Retry(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, retry.Status)
	assert.Equal(t, 2, retry.Attempted)
	assert.Equal(t, 2, retry.Imported)
	assert.Zero(t, retry.Failed)

	updated, err = jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.ImportedItems)
	assert.Zero(t, updated.FailedItems)
	assert.LessOrEqual(t, updated.ImportedItems+updated.FailedItems, updated.TotalItems)

	// Items that succeeded on the first pass were not re-sent
	for _, title := range []string{"photo-0", "photo-2", "photo-4"} {
		assert.Equal(t, 1, targetClient.attemptCount(title), title)
	}
	for _, title := range []string{"photo-1", "photo-3"} {
		assert.Equal(t, 2, targetClient.attemptCount(title), title)
	}
}

func TestCommit_ConflictCountsAsSkippedSuccess(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobs()
	items := newFakeItems()
	targetClient := newFakeTarget()
	targetClient.conflicts["photo-0"] = true

	job := stageJob(t, jobs, items, "user-1", 2)
	committer := NewCommitter(jobs, items, targetClient, nil, 1, noopLogger())

	result, err := committer.Commit(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Failed)

	updated, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.ImportedItems)
	assert.Zero(t, updated.FailedItems)

	conflicted := items.find(job.ID, "src-0")
	require.NotNil(t, conflicted)
	assert.Equal(t, models.CommitStatusSucceeded, conflicted.CommitStatus)
	assert.True(t, conflicted.Skipped)
	assert.Nil(t, conflicted.TargetID)
}

func TestCommit_SendsJobTargetToPlatform(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobs()
	items := newFakeItems()
	targetClient := newFakeTarget()

	job, err := jobs.Create(ctx, "account-1", "user-1", "gedcom", models.JobTargetFamilyTree)
	require.NoError(t, err)

	staged, err := items.InsertBatch(ctx, job.ID, stagedContent(2))
	require.NoError(t, err)
	require.Equal(t, 2, staged)
	require.NoError(t, jobs.SetTotal(ctx, job.ID, 2))
	require.NoError(t, jobs.TransitionStatus(ctx, job.ID, models.JobStatusProcessing, models.JobStatusPending))

	committer := NewCommitter(jobs, items, targetClient, nil, 1, noopLogger())
	result, err := committer.Commit(ctx, job.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, 2, result.Imported)

	// Every record lands in the target the job was created for
	for _, title := range []string{"photo-0", "photo-1"} {
		assert.Equal(t, models.JobTargetFamilyTree, targetClient.targetType(title), title)
	}
}

func TestCommit_RecommittingNeverDoubleCounts(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobs()
	items := newFakeItems()
	targetClient := newFakeTarget()

	job := stageJob(t, jobs, items, "user-1", 3)
	committer := NewCommitter(jobs, items, targetClient, nil, 2, noopLogger())

	result, err := committer.Commit(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, 3, result.Imported)

	// A finished job rejects a second commit outright
	_, err = committer.Commit(ctx, job.ID, "user-1")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	// Even if the job lands back in processing, succeeded items are never
	// re-sent or re-counted
	require.NoError(t, jobs.TransitionStatus(ctx, job.ID, models.JobStatusProcessing, models.JobStatusCompleted))

	again, err := committer.Commit(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Zero(t, again.Attempted)
	assert.Zero(t, again.Imported)
	assert.Equal(t, models.JobStatusCompleted, again.Status)

	updated, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.ImportedItems)
	for _, title := range []string{"photo-0", "photo-1", "photo-2"} {
		assert.Equal(t, 1, targetClient.attemptCount(title), title)
	}
}

func TestCommit_RejectsJobsOutsideProcessing(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobs()
	items := newFakeItems()
	committer := NewCommitter(jobs, items, newFakeTarget(), nil, 1, noopLogger())

	t.Run("pending job still staging", func(t *testing.T) {
		job, err := jobs.Create(ctx, "account-1", "user-1", "csv", models.JobTargetMemorial)
		require.NoError(t, err)

		_, err = committer.Commit(ctx, job.ID, "user-1")
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("finished job", func(t *testing.T) {
		job := stageJob(t, jobs, items, "user-1", 1)
		_, err := committer.Commit(ctx, job.ID, "user-1")
		require.NoError(t, err)

		_, err = committer.Commit(ctx, job.ID, "user-1")
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})
}

func TestCommit_OtherUsersJobNotFound(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobs()
	items := newFakeItems()
	committer := NewCommitter(jobs, items, newFakeTarget(), nil, 1, noopLogger())

	job := stageJob(t, jobs, items, "user-1", 1)
	_, err := committer.Commit(ctx, job.ID, "user-2")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRetry_RequiresFailedItems(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobs()
	items := newFakeItems()
	committer := NewCommitter(jobs, items, newFakeTarget(), nil, 1, noopLogger())

	job := stageJob(t, jobs, items, "user-1", 2)
	_, err := committer.Commit(ctx, job.ID, "user-1")
	require.NoError(t, err)

	_, err = committer.Retry(ctx, job.ID, "user-1")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestCommit_EmptySelectionCompletes(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobs()
	items := newFakeItems()
	targetClient := newFakeTarget()

	job := stageJob(t, jobs, items, "user-1", 3)
	pending, err := items.ListSelectedPending(ctx, job.ID)
	require.NoError(t, err)
	for _, item := range pending {
		items.setSelected(item.ID, false)
	}

	committer := NewCommitter(jobs, items, targetClient, nil, 2, noopLogger())
	result, err := committer.Commit(ctx, job.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Zero(t, result.Attempted)
}
