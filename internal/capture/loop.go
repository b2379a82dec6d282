package capture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/device"
	"github.com/spigell/emotion-tracker/internal/emotion"
	"github.com/spigell/emotion-tracker/internal/inference"
)

// newTicker and now are swapped in tests.
var (
	newTicker = func(d time.Duration) (<-chan time.Time, func()) {
		t := time.NewTicker(d)
		return t.C, t.Stop
	}
	now = time.Now
)

func (c *Controller) loop(ctx context.Context, src device.Source, done chan<- struct{}) {
	defer close(done)

	ticks, stopTicker := newTicker(c.opts.Interval)
	defer stopTicker()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			c.tick(ctx, src)
		}
	}
}

// tick captures one frame and runs inference on it. Any failure skips the tick.
func (c *Controller) tick(ctx context.Context, src device.Source) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("capture tick panicked", zap.Any("panic", r))
		}
	}()

	c.metrics.Ticks.Add(1)

	tickCtx, cancel := context.WithTimeout(ctx, c.opts.TickTimeout)
	defer cancel()

	var framed atomic.Bool
	var out tickResult
	select {
	case out = <-c.analyze(tickCtx, src, &framed):
	case <-tickCtx.Done():
		// A device or analyzer that ignores its context must not hold the
		// loop; whatever it returns later is dropped.
		out = tickResult{stage: stageFrame, err: tickCtx.Err()}
		if framed.Load() {
			out.stage = stageInference
		}
	}

	if out.err != nil {
		if out.stage == stageFrame {
			c.metrics.CaptureFailures.Add(1)
		} else {
			c.metrics.InferenceFailures.Add(1)
		}
		c.logger.Debug("skipping tick", zap.String("reason", out.stage), zap.Error(out.err))
		return
	}
	res := out.res

	// Stop won the race against this tick.
	if ctx.Err() != nil {
		return
	}

	sample := emotion.Sample{
		Timestamp:  now(),
		Dominant:   res.Dominant,
		Confidence: res.Confidence,
		Scores:     res.Scores,
		Clarity:    res.Clarity,
	}

	c.mu.Lock()
	c.samples = append(c.samples, sample)
	c.live = Reading{Dominant: sample.Dominant, Confidence: sample.Confidence, At: sample.Timestamp}
	var checkpoint *emotion.Summary
	if len(c.samples)%c.opts.CheckpointEvery == 0 {
		summary := emotion.Summarize(c.samples)
		checkpoint = &summary
	}
	c.mu.Unlock()

	c.metrics.Samples.Add(1)
	c.logger.Debug("sample recorded",
		zap.String("dominant", sample.Dominant),
		zap.Float64("confidence", sample.Confidence),
	)

	if checkpoint != nil {
		c.checkpoints.submit(*checkpoint)
	}
}

const (
	stageFrame     = "frame"
	stageInference = "inference"
)

type tickResult struct {
	res   *inference.Result
	stage string
	err   error
}

// analyze captures and classifies one frame in its own goroutine. The
// channel is buffered so a result nobody waits for anymore is simply dropped.
func (c *Controller) analyze(ctx context.Context, src device.Source, framed *atomic.Bool) <-chan tickResult {
	out := make(chan tickResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- tickResult{stage: stageInference, err: fmt.Errorf("analyzer panicked: %v", r)}
			}
		}()

		image, err := c.frame(ctx, src)
		if err != nil {
			out <- tickResult{stage: stageFrame, err: err}
			return
		}
		framed.Store(true)

		res, err := c.analyzer.Analyze(ctx, image, c.interviewID)
		out <- tickResult{res: res, stage: stageInference, err: err}
	}()

	return out
}

func (c *Controller) frame(ctx context.Context, src device.Source) ([]byte, error) {
	img, err := src.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}

	encoder := c.opts.Encoder
	if encoder.Width <= 0 && encoder.Height <= 0 {
		encoder.Width, encoder.Height = device.DefaultWidth, device.DefaultHeight
	}
	return encoder.Encode(img)
}
