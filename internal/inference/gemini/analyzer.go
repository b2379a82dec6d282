package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/inference"
	"github.com/spigell/emotion-tracker/internal/logger"
	"github.com/spigell/emotion-tracker/internal/utils"
)

type contentGenerator interface {
	GenerateFromImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
	Model() string
}

// Analyzer asks a Gemini model for per-label emotion scores and derives
// confidence and clarity locally.
type Analyzer struct {
	generator contentGenerator
	labels    []string
	logger    *zap.Logger
	maxLogLen int
}

//go:embed prompt.md
var promptTemplate string

const (
	providerName        = "gemini"
	defaultMaxLogLength = 200
	imageMIMEType       = "image/jpeg"
)

// DefaultLabels are the emotion categories the model is asked to score.
var DefaultLabels = []string{"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"}

var _ inference.Analyzer = (*Analyzer)(nil)

func NewAnalyzer(generator contentGenerator, log *zap.Logger, labels []string, maxLogLength int) *Analyzer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if len(labels) == 0 {
		labels = DefaultLabels
	}

	return &Analyzer{
		generator: generator,
		labels:    labels,
		logger:    logger.WithInferenceFields(log, providerName, generator.Model()),
		maxLogLen: maxLogLength,
	}
}

func (a *Analyzer) Analyze(ctx context.Context, image []byte, sessionID string) (*inference.Result, error) {
	if len(image) == 0 {
		return nil, errors.New("image is required")
	}

	requestID := uuid.NewString()
	prompt := buildPrompt(a.labels)

	a.logger.Debug("gemini analyze request",
		zap.String(logger.FieldRequestID, requestID),
		zap.String(logger.FieldInterview, sessionID),
		zap.Int("image_bytes", len(image)),
	)

	raw, err := a.generator.GenerateFromImage(ctx, prompt, image, imageMIMEType)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("gemini analyze response",
		zap.String(logger.FieldRequestID, requestID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
	)

	return parseResponse(raw)
}

func buildPrompt(labels []string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Score each emotion from 0 to 100:\n{{LABELS}}\n\nJSON Response:"
	}
	list := make([]string, 0, len(labels))
	for _, l := range labels {
		list = append(list, "- "+l)
	}
	return strings.ReplaceAll(template, "{{LABELS}}", strings.Join(list, "\n"))
}

func parseResponse(raw string) (*inference.Result, error) {
	cleaned := extractJSON(strings.TrimSpace(raw))

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	rawScores, _ := data["scores"].(map[string]any)
	if len(rawScores) == 0 {
		return nil, errors.New("gemini response has no emotion scores")
	}

	scores := make(map[string]float64, len(rawScores))
	for label, v := range rawScores {
		score := coerceFloat(v)
		if math.IsNaN(score) {
			continue
		}
		scores[strings.ToLower(strings.TrimSpace(label))] = score
	}

	result := &inference.Result{
		Dominant:   strings.ToLower(coerceString(data["dominant"])),
		Confidence: inference.DeriveConfidence(scores),
		Scores:     scores,
	}
	if _, ok := scores[result.Dominant]; !ok {
		// Trust the scores over a dominant label the model did not score.
		result.Dominant = ""
	}

	normalized, err := inference.Normalize(result)
	if err != nil {
		return nil, err
	}
	if clarity, ok := inference.DeriveClarity(normalized.Scores); ok {
		normalized.Clarity = &clarity
	}
	return normalized, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(val), "%")
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return ""
	}
}
