package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/normalizers"
	"github.com/Ramsey-B/willow/pkg/redis"
	"github.com/Ramsey-B/willow/pkg/target"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

const scanLockKey = "duplicate-scan"

// ReportStore is the duplicate report persistence surface the detector needs
type ReportStore interface {
	Insert(ctx context.Context, memorialIDA, memorialIDB string, score float64, fieldScores json.RawMessage) (*models.DuplicateReport, error)
	Get(ctx context.Context, id string) (*models.DuplicateReport, error)
	List(ctx context.Context, status *string, limit int) ([]models.DuplicateReport, error)
	Resolve(ctx context.Context, id, status string, survivorID *string, resolvedBy string) (*models.DuplicateReport, error)
}

// ScanLocker serializes scans across service instances
type ScanLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Detector scans the platform's memorials for likely duplicates and resolves
// confirmed pairs
type Detector struct {
	reports   ReportStore
	target    target.Client
	scorer    *Scorer
	locker    ScanLocker
	emitter   *events.Emitter
	threshold float64
	pageSize  int
	lockTTL   time.Duration
	logger    ectologger.Logger
}

// DetectorConfig holds duplicate detection tuning
type DetectorConfig struct {
	ScoreThreshold float64
	PageSize       int
	LockTTL        time.Duration
}

// NewDetector creates the duplicate detector
func NewDetector(reports ReportStore, targetClient target.Client, locker ScanLocker, emitter *events.Emitter, cfg DetectorConfig, logger ectologger.Logger) *Detector {
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = 0.85
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 200
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Detector{
		reports:   reports,
		target:    targetClient,
		scorer:    NewScorer(),
		locker:    locker,
		emitter:   emitter,
		threshold: cfg.ScoreThreshold,
		pageSize:  cfg.PageSize,
		lockTTL:   cfg.LockTTL,
		logger:    logger,
	}
}

// Scan runs one full duplicate scan over the platform's memorials. A redis
// lock serializes scans across instances; a second caller gets
// ErrScanInProgress instead of a duplicate pass.
func (d *Detector) Scan(ctx context.Context) (*models.ScanResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Detector.Scan")
	defer span.End()

	start := time.Now()
	var result *models.ScanResult
	err := d.locker.WithLock(ctx, scanLockKey, d.lockTTL, func() error {
		scanned, err := d.runScan(ctx)
		result = scanned
		return err
	})
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return nil, models.ErrScanInProgress
		}
		metrics.RecordScan("failed", time.Since(start).Seconds())
		return nil, err
	}

	metrics.RecordScan("ok", time.Since(start).Seconds())
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"memorials": result.MemorialsScanned,
		"pairs":     result.PairsCompared,
		"reports":   result.ReportsCreated,
	}).Info("Duplicate scan finished")
	return result, nil
}

func (d *Detector) runScan(ctx context.Context) (*models.ScanResult, error) {
	result := &models.ScanResult{}

	// Block by surname phonetics so the pass stays linear in practice instead
	// of comparing every memorial against every other.
	blocks := make(map[string][]models.Memorial)
	page := 1
	for {
		memorials, err := d.target.ListMemorials(ctx, page, d.pageSize)
		if err != nil {
			return nil, err
		}
		if len(memorials) == 0 {
			break
		}

		for _, m := range memorials {
			key := d.scorer.Soundex(normalizers.NormalizeName(m.Surname))
			blocks[key] = append(blocks[key], m)
		}
		result.MemorialsScanned += len(memorials)
		page++
	}

	for _, block := range blocks {
		for i := 0; i < len(block); i++ {
			for j := i + 1; j < len(block); j++ {
				result.PairsCompared++

				score, fieldScores := d.scorer.Score(&block[i], &block[j])
				if score < d.threshold {
					continue
				}

				scoresJSON, err := json.Marshal(fieldScores)
				if err != nil {
					return nil, err
				}

				report, err := d.reports.Insert(ctx, block[i].ID, block[j].ID, score, scoresJSON)
				if err != nil {
					return nil, err
				}
				if report == nil {
					continue // pair already reported
				}

				result.ReportsCreated++
				metrics.DuplicateReportsTotal.WithLabelValues("created").Inc()
				if d.emitter != nil {
					d.emitter.EmitReportCreated(ctx, report)
				}
			}
		}
	}

	return result, nil
}

// ListReports returns duplicate reports, optionally filtered by status
func (d *Detector) ListReports(ctx context.Context, status *string, limit int) ([]models.DuplicateReport, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Detector.ListReports")
	defer span.End()

	return d.reports.List(ctx, status, limit)
}

// Resolve closes a report. Merge folds the non-surviving memorial into the
// survivor on the platform before recording the outcome; reject just closes
// the report. Already resolved reports return ErrInvalidState.
func (d *Detector) Resolve(ctx context.Context, reportID, resolvedBy string, req models.ResolveReportRequest) (*models.DuplicateReport, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Detector.Resolve")
	defer span.End()

	report, err := d.reports.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.IsResolved() {
		return nil, models.ErrInvalidState
	}

	switch req.Action {
	case models.ResolveActionReject:
		resolved, err := d.reports.Resolve(ctx, reportID, models.ReportStatusRejected, nil, resolvedBy)
		if err != nil {
			return nil, err
		}
		metrics.DuplicateReportsTotal.WithLabelValues("rejected").Inc()
		return resolved, nil

	case models.ResolveActionMerge:
		if req.SurvivorID != report.MemorialIDA && req.SurvivorID != report.MemorialIDB {
			return nil, fmt.Errorf("%w: survivor must be one of the reported pair", models.ErrValidation)
		}

		absorbedID := report.MemorialIDA
		if req.SurvivorID == report.MemorialIDA {
			absorbedID = report.MemorialIDB
		}

		if err := d.target.MergeMemorials(ctx, req.SurvivorID, absorbedID); err != nil {
			return nil, err
		}

		resolved, err := d.reports.Resolve(ctx, reportID, models.ReportStatusMerged, &req.SurvivorID, resolvedBy)
		if err != nil {
			return nil, err
		}

		metrics.DuplicateReportsTotal.WithLabelValues("merged").Inc()
		if d.emitter != nil {
			d.emitter.EmitReportMerged(ctx, resolved)
		}
		return resolved, nil

	default:
		return nil, fmt.Errorf("%w: unknown action %q", models.ErrValidation, req.Action)
	}
}
