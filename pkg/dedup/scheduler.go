package dedup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
var ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

// DefaultScanInterval is the default interval between scan passes
const DefaultScanInterval = time.Hour

// Scheduler runs periodic duplicate scans. It implements the startup
// dependency contract so the server starts and stops it with everything else.
type Scheduler struct {
	detector *Detector
	interval time.Duration
	logger   ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a scan scheduler
func NewScheduler(detector *Detector, interval time.Duration, logger ectologger.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Scheduler{
		detector: detector,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// GetName identifies the scheduler to the startup manager
func (s *Scheduler) GetName() string {
	return "duplicate-scan-scheduler"
}

// DependsOn lists the startup dependencies that must come up first
func (s *Scheduler) DependsOn() []string {
	return []string{"redis"}
}

// Start begins the periodic scan loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting duplicate scan scheduler: interval=%s", s.interval)
	go s.loop(context.WithoutCancel(ctx))
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Duplicate scan scheduler stopped")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Duplicate scan scheduler shutdown timed out")
		return ctx.Err()
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Scheduler.runOnce")
	defer span.End()

	_, err := s.detector.Scan(ctx)
	if err != nil {
		if errors.Is(err, models.ErrScanInProgress) {
			s.logger.WithContext(ctx).Debug("Skipping scheduled scan, another scan holds the lock")
			return
		}
		s.logger.WithContext(ctx).WithError(err).Error("Scheduled duplicate scan failed")
	}
}
