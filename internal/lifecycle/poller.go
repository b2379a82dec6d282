package lifecycle

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/logger"
)

// DefaultPollInterval keeps the worst-case detection latency at half a second.
const DefaultPollInterval = 500 * time.Millisecond

// PresenceFunc reports whether the session is currently live.
type PresenceFunc func() (bool, error)

// newTicker is swapped in tests.
var newTicker = func(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Poller is the fallback lifecycle signal for hosts that cannot call Hooks
// directly. It polls a presence indicator and turns its transitions into
// OnStart and OnEnd calls. A transition is noticed at most one interval after
// it happened.
type Poller struct {
	presence PresenceFunc
	interval time.Duration
	handler  Handler
	logger   *zap.Logger
}

func NewPoller(presence PresenceFunc, interval time.Duration, handler Handler, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		presence: presence,
		interval: interval,
		handler:  handler,
		logger:   logger.WithFields(log),
	}
}

// Latency is the worst-case delay between a presence change and its callback.
func (p *Poller) Latency() time.Duration {
	return p.interval
}

// Run polls until ctx is done. Presence check errors are logged and treated as
// "no change".
func (p *Poller) Run(ctx context.Context) error {
	ticks, stop := newTicker(p.interval)
	defer stop()

	p.logger.Info("polling session presence", zap.Duration("max_latency", p.Latency()))

	present := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticks:
		}

		live, err := p.presence()
		if err != nil {
			p.logger.Debug("checking session presence", zap.Error(err))
			continue
		}

		switch {
		case live && !present:
			p.handler.OnStart(ctx)
		case !live && present:
			p.handler.OnEnd(ctx)
		}
		present = live
	}
}

// FileExists reports presence while the file at path exists.
func FileExists(path string) PresenceFunc {
	return func() (bool, error) {
		_, err := os.Stat(path)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
}
