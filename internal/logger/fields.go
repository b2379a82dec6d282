package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldInterview is the structured log field key for the interview identifier.
	FieldInterview = "interview_id"
	// FieldProvider is the structured log field key for the inference provider name.
	FieldProvider = "inference_provider"
	// FieldModel is the structured log field key for the inference model identifier.
	FieldModel = "inference_model"
	// FieldRequestID correlates a single inference call across client and service logs.
	FieldRequestID = "request_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// If the logger is nil or no fields are supplied, the input logger is returned
// unchanged, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// WithSession scopes the logger to one interview.
func WithSession(logger *zap.Logger, interviewID string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldInterview, Value: interviewID})...)
}

// InferenceFields returns fields that describe the inference provider and model.
// Empty values are ignored to keep log entries compact when information is missing.
func InferenceFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithInferenceFields attaches the inference fields to the provided logger.
func WithInferenceFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, InferenceFields(provider, model)...)
}
