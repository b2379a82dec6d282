package capture

import (
	"sync"

	"github.com/spigell/emotion-tracker/internal/emotion"
)

// checkpointer writes summaries in the background. It holds at most one
// pending summary; a newer submit replaces an unwritten older one.
type checkpointer struct {
	write func(emotion.Summary)

	mu      sync.Mutex
	pending *emotion.Summary
	running bool
	idle    chan struct{}
}

func newCheckpointer(write func(emotion.Summary)) *checkpointer {
	return &checkpointer{write: write}
}

func (w *checkpointer) submit(summary emotion.Summary) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = &summary
	if w.running {
		return
	}

	w.running = true
	w.idle = make(chan struct{})
	go w.run(w.idle)
}

func (w *checkpointer) run(idle chan struct{}) {
	for {
		w.mu.Lock()
		next := w.pending
		w.pending = nil
		if next == nil {
			w.running = false
			close(idle)
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		w.write(*next)
	}
}

// drain blocks until every submitted summary has been written.
func (w *checkpointer) drain() {
	w.mu.Lock()
	idle, running := w.idle, w.running
	w.mu.Unlock()

	if running {
		<-idle
	}
}
