package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/device"
	"github.com/spigell/emotion-tracker/internal/emotion"
	"github.com/spigell/emotion-tracker/internal/inference"
	"github.com/spigell/emotion-tracker/internal/logger"
	"github.com/spigell/emotion-tracker/internal/metrics"
	"github.com/spigell/emotion-tracker/internal/store"
)

// ErrDevice wraps every failure to acquire the capture device.
var ErrDevice = errors.New("capture device unavailable")

const (
	DefaultInterval        = 2 * time.Second
	DefaultCheckpointEvery = 3
)

// State is the lifecycle position of a Controller.
type State int

const (
	Idle State = iota
	DeviceReady
	Sampling
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DeviceReady:
		return "device-ready"
	case Sampling:
		return "sampling"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options tune a Controller. Zero values take the defaults.
type Options struct {
	Interval time.Duration
	// TickTimeout bounds frame capture plus inference of one tick. Defaults to Interval.
	TickTimeout     time.Duration
	CheckpointEvery int
	Constraints     device.Constraints
	Encoder         device.Encoder
	// Disabled turns Start, Stop and RetryDevice into no-ops.
	Disabled bool
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Provider device.Provider
	Analyzer inference.Analyzer
	Store    store.Store
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Status is a snapshot of the controller for status surfaces.
type Status struct {
	State    State
	Disabled bool
	Samples  int
	// Err is the last device error. It is cleared by a successful acquisition.
	Err error
}

// Reading is the latest successful inference, for live display.
type Reading struct {
	Dominant   string
	Confidence float64
	At         time.Time
}

// Controller owns the capture device of one interview and samples it on a
// fixed interval. Failures inside the loop are logged and counted, never
// returned to the caller.
type Controller struct {
	interviewID string
	key         string
	opts        Options

	provider device.Provider
	analyzer inference.Analyzer
	store    store.Store
	logger   *zap.Logger
	metrics  *metrics.Metrics

	// opMu serializes Start, Stop and RetryDevice.
	opMu sync.Mutex

	mu      sync.Mutex
	state   State
	lastErr error
	source  device.Source
	cancel  context.CancelFunc
	done    chan struct{}
	samples []emotion.Sample
	live    Reading

	checkpoints *checkpointer
}

// New creates an idle controller for the interview.
func New(interviewID string, deps Deps, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = opts.Interval
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = DefaultCheckpointEvery
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	c := &Controller{
		interviewID: interviewID,
		key:         emotion.SessionKey(interviewID),
		opts:        opts,
		provider:    deps.Provider,
		analyzer:    deps.Analyzer,
		store:       deps.Store,
		logger:      logger.WithSession(deps.Logger, interviewID),
		metrics:     deps.Metrics,
	}
	c.checkpoints = newCheckpointer(c.writeCheckpoint)

	return c
}

// Start acquires the device and begins sampling. It is a no-op while sampling.
// A device failure leaves the controller Idle with the error in LastStatus.
//
// Cancelling ctx tears the session down exactly like Stop.
func (c *Controller) Start(ctx context.Context) {
	if c.opts.Disabled {
		c.logger.Debug("capture disabled, ignoring start")
		return
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.start(ctx)
}

// RetryDevice is the manual retry affordance after a device error. It returns
// the device error when acquisition fails again.
func (c *Controller) RetryDevice(ctx context.Context) error {
	if c.opts.Disabled {
		return nil
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.logger.Info("retrying capture device")
	c.start(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) start(ctx context.Context) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == Sampling {
		return
	}

	src, err := c.acquire(ctx)
	if err != nil {
		c.metrics.DeviceErrors.Add(1)
		c.logger.Warn("capture device unavailable", zap.Error(err))

		c.mu.Lock()
		c.state = Idle
		c.lastErr = fmt.Errorf("%w: %v", ErrDevice, err)
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.state = DeviceReady
	c.lastErr = nil
	c.source = src
	c.mu.Unlock()

	// The loop outlives ctx only until watch observes the cancellation and stops it.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.state = Sampling
	c.mu.Unlock()

	c.metrics.SetCapturing(true)
	c.logger.Info("capture started",
		zap.Duration("interval", c.opts.Interval),
		zap.Duration("tick_timeout", c.opts.TickTimeout),
	)

	go c.loop(loopCtx, src, done)
	go c.watch(ctx, done)
}

func (c *Controller) acquire(ctx context.Context) (device.Source, error) {
	if c.provider == nil {
		return nil, errors.New("no capture device configured")
	}

	constraints, err := c.opts.Constraints.Normalize()
	if err != nil {
		return nil, err
	}

	return c.provider.Acquire(ctx, constraints)
}

// watch stops the session when the context handed to Start ends before Stop is called.
func (c *Controller) watch(ctx context.Context, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		c.opMu.Lock()
		defer c.opMu.Unlock()

		c.mu.Lock()
		current := c.done == done
		c.mu.Unlock()

		if current {
			c.logger.Info("session context ended, stopping capture", zap.Error(ctx.Err()))
			c.stop()
		}
	case <-done:
	}
}

// Stop cancels the loop, releases the device and writes the final checkpoint,
// even over an empty buffer. Repeated calls release nothing twice and write
// the same summary again.
func (c *Controller) Stop() {
	if c.opts.Disabled {
		return
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.stop()
}

func (c *Controller) stop() {
	c.mu.Lock()
	cancel, done, src := c.cancel, c.done, c.source
	c.cancel, c.done, c.source = nil, nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if src != nil {
		if err := src.Close(); err != nil {
			c.logger.Warn("releasing capture device", zap.Error(err))
		}
	}

	c.checkpoints.drain()

	c.mu.Lock()
	c.state = Stopped
	summary := emotion.Summarize(c.samples)
	c.mu.Unlock()

	c.metrics.SetCapturing(false)
	c.writeCheckpoint(summary)

	c.logger.Info("capture stopped", zap.Int("samples", summary.TotalDetections))
}

// IsCapturing reports whether the loop is sampling.
func (c *Controller) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Sampling
}

// LastStatus returns the current state and the last device error.
func (c *Controller) LastStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:    c.state,
		Disabled: c.opts.Disabled,
		Samples:  len(c.samples),
		Err:      c.lastErr,
	}
}

// Live returns the latest reading. ok is false until the first successful tick.
func (c *Controller) Live() (Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live, !c.live.At.IsZero()
}

// Summary aggregates the samples collected so far without persisting them.
func (c *Controller) Summary() emotion.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return emotion.Summarize(c.samples)
}

// InterviewID is the session key source of this controller.
func (c *Controller) InterviewID() string {
	return c.interviewID
}

func (c *Controller) writeCheckpoint(summary emotion.Summary) {
	if c.store == nil {
		return
	}

	// Runs on the checkpointer goroutine as well as inside Stop.
	defer func() {
		if r := recover(); r != nil {
			c.metrics.CheckpointFailures.Add(1)
			c.logger.Error("summary checkpoint panicked", zap.Any("panic", r))
		}
	}()

	if err := c.store.Put(c.key, summary); err != nil {
		c.metrics.CheckpointFailures.Add(1)
		c.logger.Warn("writing summary checkpoint", zap.Error(err))
		return
	}

	c.metrics.CheckpointWrites.Add(1)
	c.logger.Debug("summary checkpoint written", zap.Int("total_detections", summary.TotalDetections))
}
