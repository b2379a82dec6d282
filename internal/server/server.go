package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/capture"
	"github.com/spigell/emotion-tracker/internal/emotion"
	"github.com/spigell/emotion-tracker/internal/lifecycle"
	"github.com/spigell/emotion-tracker/internal/logger"
	"github.com/spigell/emotion-tracker/internal/metrics"
	"github.com/spigell/emotion-tracker/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Capture is the read side of the capture controller plus its retry affordance.
type Capture interface {
	LastStatus() capture.Status
	Live() (capture.Reading, bool)
	RetryDevice(ctx context.Context) error
}

// Config wires the control server to one session.
type Config struct {
	InterviewID string
	Lifecycle   lifecycle.Handler
	Capture     Capture
	Summaries   store.Store
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Server lets a hosting session drive the lifecycle over HTTP and read the
// live status.
type Server struct {
	cfg    Config
	logger *zap.Logger
	// ctx outlives single requests; capture started from a request runs under it.
	ctx context.Context
}

func New(ctx context.Context, cfg Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.WithSession(cfg.Logger, cfg.InterviewID),
		ctx:    ctx,
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/session/start", s.handleSessionStart)
	mux.HandleFunc("/session/end", s.handleSessionEnd)
	mux.HandleFunc("/capture/retry", s.handleRetry)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/summary", s.handleSummary)
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics.Handler())
	}

	return mux
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.cfg.Lifecycle.OnStart(s.ctx)
	writeJSON(w, s.statusPayload())
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.cfg.Lifecycle.OnEnd(s.ctx)
	writeJSON(w, s.statusPayload())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.cfg.Capture.RetryDevice(s.ctx); err != nil {
		payload := s.statusPayload()
		payload["error"] = err.Error()
		writeJSONWithStatus(w, payload, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.statusPayload())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.statusPayload())
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	summary, err := s.cfg.Summaries.Get(emotion.SessionKey(s.cfg.InterviewID))
	if err != nil {
		s.logger.Warn("reading summary", zap.Error(err))
		writeJSONWithStatus(w, map[string]any{"error": "summary unavailable"}, http.StatusInternalServerError)
		return
	}
	if summary == nil {
		writeJSONWithStatus(w, map[string]any{"error": "no summary yet"}, http.StatusNotFound)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) statusPayload() map[string]any {
	status := s.cfg.Capture.LastStatus()
	payload := map[string]any{
		"interviewId": s.cfg.InterviewID,
		"state":       status.State.String(),
		"capturing":   status.State == capture.Sampling,
		"disabled":    status.Disabled,
		"samples":     status.Samples,
	}
	if status.Err != nil {
		payload["deviceError"] = status.Err.Error()
		payload["retry"] = "POST /capture/retry"
	}
	if live, ok := s.cfg.Capture.Live(); ok {
		payload["dominant"] = live.Dominant
		payload["confidence"] = live.Confidence
		payload["updatedAt"] = live.At
	}
	return payload
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
