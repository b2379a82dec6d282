package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spigell/emotion-tracker/internal/utils"
)

// ErrUnsuccessful is returned when the service answered but reported failure.
var ErrUnsuccessful = errors.New("inference service reported failure")

// Result is one emotion inference over a single still image.
type Result struct {
	Dominant   string
	Confidence float64
	Scores     map[string]float64
	// Clarity is nil when the provider did not report one.
	Clarity *float64
}

// Analyzer runs emotion inference on an encoded still image.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, sessionID string) (*Result, error)
}

// StatusError describes a non-success HTTP answer from an inference service.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference %s: %s", e.Status, utils.TruncateForLog(e.Body, 200))
}

// Normalize clamps every numeric field to [0, 100], drops non-finite scores and
// empty labels, and fills Dominant from the highest score when it is missing.
func Normalize(r *Result) (*Result, error) {
	if r == nil {
		return nil, errors.New("empty inference result")
	}

	out := &Result{
		Dominant:   strings.TrimSpace(r.Dominant),
		Confidence: clamp(r.Confidence),
		Scores:     make(map[string]float64, len(r.Scores)),
	}

	for label, score := range r.Scores {
		label = strings.TrimSpace(label)
		if label == "" || math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		out.Scores[label] = clamp(score)
	}

	if r.Clarity != nil && !math.IsNaN(*r.Clarity) && !math.IsInf(*r.Clarity, 0) {
		c := clamp(*r.Clarity)
		out.Clarity = &c
	}

	if out.Dominant == "" {
		ranked := rank(out.Scores)
		if len(ranked) == 0 {
			return nil, errors.New("inference result has neither a dominant label nor scores")
		}
		out.Dominant = ranked[0].label
	}

	return out, nil
}

// Weights of the weighted-emotion confidence estimate. Labels outside this set
// do not influence confidence.
var confidenceWeights = map[string]float64{
	"neutral":  0.50,
	"happy":    0.60,
	"fear":     -0.30,
	"sad":      -0.20,
	"disgust":  -0.15,
	"angry":    -0.10,
	"surprise": -0.05,
}

const (
	confidenceOffset = 50.0
	confidenceFloor  = 45.0
	confidenceCeil   = 100.0
)

// DeriveConfidence estimates how confident a candidate looks from the
// emotion scores (0-100 each). The result always lies in [45, 100].
func DeriveConfidence(scores map[string]float64) float64 {
	var weighted float64
	for label, weight := range confidenceWeights {
		weighted += scores[label] / 100 * weight
	}

	confidence := weighted*100 + confidenceOffset
	return math.Max(confidenceFloor, math.Min(confidenceCeil, confidence))
}

// DeriveClarity is the gap between the two highest scores. It reports false
// when fewer than two scores are available.
func DeriveClarity(scores map[string]float64) (float64, bool) {
	ranked := rank(scores)
	if len(ranked) < 2 {
		return 0, false
	}
	return ranked[0].score - ranked[1].score, true
}

type labelScore struct {
	label string
	score float64
}

func rank(scores map[string]float64) []labelScore {
	out := make([]labelScore, 0, len(scores))
	for label, score := range scores {
		out = append(out, labelScore{label: label, score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].label < out[j].label
	})
	return out
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
