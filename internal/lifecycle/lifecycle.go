package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/logger"
)

// Capture is the part of the capture controller driven by the session lifecycle.
type Capture interface {
	Start(ctx context.Context)
	Stop()
}

// Syncer reacts to the end of a session.
type Syncer interface {
	SessionEnded(ctx context.Context, interviewID string) bool
}

// Handler receives the two lifecycle conditions of a session.
type Handler interface {
	OnStart(ctx context.Context)
	OnEnd(ctx context.Context)
}

// Hooks is the direct-callback lifecycle capability. The hosting session calls
// OnStart when capture should begin and OnEnd when the session is over.
type Hooks struct {
	interviewID string
	capture     Capture
	syncer      Syncer
	logger      *zap.Logger
}

var _ Handler = (*Hooks)(nil)

func NewHooks(interviewID string, capture Capture, syncer Syncer, log *zap.Logger) *Hooks {
	return &Hooks{
		interviewID: interviewID,
		capture:     capture,
		syncer:      syncer,
		logger:      logger.WithSession(log, interviewID),
	}
}

func (h *Hooks) OnStart(ctx context.Context) {
	h.logger.Info("session started")
	h.capture.Start(ctx)
}

// OnEnd stops capture, which writes the final checkpoint, and then signals the
// syncer. Signals arriving while a sync is in flight are dropped by the syncer.
func (h *Hooks) OnEnd(ctx context.Context) {
	h.logger.Info("session ended")
	h.capture.Stop()

	if h.syncer != nil && !h.syncer.SessionEnded(ctx, h.interviewID) {
		h.logger.Debug("emotion sync already running")
	}
}
