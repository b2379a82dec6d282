package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/emotion"
	"github.com/spigell/emotion-tracker/internal/feedback"
	"github.com/spigell/emotion-tracker/internal/logger"
	"github.com/spigell/emotion-tracker/internal/metrics"
	"github.com/spigell/emotion-tracker/internal/store"
	"github.com/spigell/emotion-tracker/internal/utils"
)

// DefaultSettleDelay gives the feedback collaborator time to create its record.
const DefaultSettleDelay = 2500 * time.Millisecond

var (
	ErrNoRecord     = errors.New("no feedback record for session")
	ErrNoSummary    = errors.New("no emotion summary persisted for session")
	ErrEmptySummary = errors.New("emotion summary has no detections")
	ErrInFlight     = errors.New("emotion sync already in flight")
)

// Coordinator merges the persisted session summary into the session's
// feedback record once the session has ended. At most one sync runs at a time.
type Coordinator struct {
	summaries store.Store
	records   feedback.Store
	settle    time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics

	// wait is utils.WaitFor outside of tests.
	wait func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	inFlight bool
	wg       sync.WaitGroup
}

// New creates a coordinator. A zero settle delay merges immediately.
func New(summaries store.Store, records feedback.Store, settle time.Duration, log *zap.Logger, m *metrics.Metrics) *Coordinator {
	if m == nil {
		m = metrics.New()
	}
	if settle < 0 {
		settle = 0
	}

	return &Coordinator{
		summaries: summaries,
		records:   records,
		settle:    settle,
		logger:    logger.WithFields(log),
		metrics:   m,
		wait:      utils.WaitFor,
	}
}

// SessionEnded is the signal handler. It starts a background sync and reports
// whether it did; a signal arriving while another sync is in flight is
// dropped. Failures are logged, never returned.
func (c *Coordinator) SessionEnded(ctx context.Context, interviewID string) bool {
	log := logger.WithSession(c.logger, interviewID)

	if !c.acquire() {
		log.Debug("session end already being synced, ignoring signal")
		return false
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release()

		if err := c.run(ctx, interviewID, log); err != nil {
			c.report(log, err)
		}
	}()

	return true
}

// Sync runs one sync in the foreground and returns its outcome. It fails with
// ErrInFlight when another sync is running.
func (c *Coordinator) Sync(ctx context.Context, interviewID string) error {
	log := logger.WithSession(c.logger, interviewID)

	if !c.acquire() {
		return ErrInFlight
	}
	defer c.release()

	err := c.run(ctx, interviewID, log)
	if err != nil {
		c.report(log, err)
	}
	return err
}

// Wait blocks until background syncs started by SessionEnded have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

func (c *Coordinator) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
}

func (c *Coordinator) run(ctx context.Context, interviewID string, log *zap.Logger) error {
	log.Debug("waiting for feedback record to settle", zap.Duration("settle_delay", c.settle))

	if err := c.wait(ctx, c.settle); err != nil {
		return fmt.Errorf("settle wait: %w", err)
	}

	summary, err := c.summaries.Get(emotion.SessionKey(interviewID))
	if err != nil {
		return fmt.Errorf("read summary: %w", err)
	}
	if summary == nil {
		return ErrNoSummary
	}
	if summary.TotalDetections == 0 {
		return ErrEmptySummary
	}

	record, err := c.records.FindBySession(ctx, interviewID)
	if err != nil {
		return fmt.Errorf("find feedback record: %w", err)
	}
	if record == nil {
		return ErrNoRecord
	}

	if err := c.records.MergeEmotions(ctx, record.ID, *summary); err != nil {
		return fmt.Errorf("merge emotions into %s: %w", record.ID, err)
	}

	c.metrics.SyncMerges.Add(1)
	log.Info("emotion summary merged into feedback",
		zap.String("feedback_id", record.ID),
		zap.Int("total_detections", summary.TotalDetections),
	)
	return nil
}

func (c *Coordinator) report(log *zap.Logger, err error) {
	switch {
	case errors.Is(err, ErrNoRecord), errors.Is(err, ErrNoSummary), errors.Is(err, ErrEmptySummary):
		c.metrics.SyncSkipped.Add(1)
		log.Info("skipping emotion sync", zap.String("reason", err.Error()))
	default:
		c.metrics.SyncFailures.Add(1)
		log.Warn("emotion sync failed", zap.Error(err))
	}
}
