package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/capture"
	"github.com/spigell/emotion-tracker/internal/emotion"
	"github.com/spigell/emotion-tracker/internal/metrics"
	"github.com/spigell/emotion-tracker/internal/store"
)

type stubCapture struct {
	status   capture.Status
	live     capture.Reading
	hasLive  bool
	retryErr error
	retries  int
}

func (s *stubCapture) LastStatus() capture.Status { return s.status }

func (s *stubCapture) Live() (capture.Reading, bool) { return s.live, s.hasLive }

func (s *stubCapture) RetryDevice(context.Context) error {
	s.retries++
	return s.retryErr
}

type stubLifecycle struct {
	starts int
	ends   int
	ctx    context.Context
}

func (l *stubLifecycle) OnStart(ctx context.Context) {
	l.starts++
	l.ctx = ctx
}

func (l *stubLifecycle) OnEnd(ctx context.Context) {
	l.ends++
	l.ctx = ctx
}

type testServer struct {
	handler   http.Handler
	capture   *stubCapture
	lifecycle *stubLifecycle
	summaries *store.MemoryStore
	metrics   *metrics.Metrics
}

type ctxKey struct{}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		capture:   &stubCapture{status: capture.Status{State: capture.Sampling, Samples: 4}},
		lifecycle: &stubLifecycle{},
		summaries: store.NewMemory(),
		metrics:   metrics.New(),
	}

	ctx := context.WithValue(context.Background(), ctxKey{}, "base")
	srv := New(ctx, Config{
		InterviewID: "interview-1",
		Lifecycle:   ts.lifecycle,
		Capture:     ts.capture,
		Summaries:   ts.summaries,
		Metrics:     ts.metrics,
		Logger:      zap.NewNop(),
	})
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, path, err)
		}
	}
	return rec, body
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.capture.live = capture.Reading{Dominant: "happy", Confidence: 72, At: time.Now()}
	ts.capture.hasLive = true

	rec, body := ts.do(t, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code %d", rec.Code)
	}
	if body["state"] != "sampling" || body["capturing"] != true || body["samples"] != float64(4) {
		t.Fatalf("unexpected status body %v", body)
	}
	if body["dominant"] != "happy" || body["confidence"] != float64(72) {
		t.Fatalf("expected live reading, got %v", body)
	}
	if _, ok := body["deviceError"]; ok {
		t.Fatalf("did not expect device error, got %v", body)
	}
}

func TestSessionEndpoints(t *testing.T) {
	ts := newTestServer(t)

	if rec, _ := ts.do(t, http.MethodGet, "/session/start"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected GET to be rejected, got %d", rec.Code)
	}

	ts.do(t, http.MethodPost, "/session/start")
	ts.do(t, http.MethodPost, "/session/end")

	if ts.lifecycle.starts != 1 || ts.lifecycle.ends != 1 {
		t.Fatalf("unexpected lifecycle calls %+v", ts.lifecycle)
	}
	if ts.lifecycle.ctx.Value(ctxKey{}) != "base" {
		t.Fatal("expected lifecycle to run under the server context, not the request context")
	}
}

func TestRetryReportsDeviceError(t *testing.T) {
	ts := newTestServer(t)
	ts.capture.status = capture.Status{State: capture.Idle, Err: fmt.Errorf("%w: denied", capture.ErrDevice)}
	ts.capture.retryErr = errors.New("still denied")

	rec, body := ts.do(t, http.MethodPost, "/capture/retry")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body["error"] != "still denied" || body["retry"] == nil {
		t.Fatalf("unexpected body %v", body)
	}
	if ts.capture.retries != 1 {
		t.Fatalf("expected one retry, got %d", ts.capture.retries)
	}
}

func TestSummary(t *testing.T) {
	ts := newTestServer(t)

	if rec, _ := ts.do(t, http.MethodGet, "/summary"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before checkpoint, got %d", rec.Code)
	}

	err := ts.summaries.Put(emotion.SessionKey("interview-1"), emotion.Summary{
		Averages:        map[string]float64{"happy": 40},
		DominantCounts:  map[string]int{"happy": 2},
		TotalDetections: 2,
	})
	if err != nil {
		t.Fatalf("storing summary: %v", err)
	}

	rec, body := ts.do(t, http.MethodGet, "/summary")
	if rec.Code != http.StatusOK || body["totalDetections"] != float64(2) {
		t.Fatalf("unexpected summary response %d %v", rec.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.metrics.Samples.Add(3)

	rec, _ := ts.do(t, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "emotion_capture_samples_total 3") {
		t.Fatalf("expected samples counter in metrics output")
	}
}
