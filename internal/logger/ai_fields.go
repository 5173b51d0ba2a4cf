package logger

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/job-buddy/internal/ai"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
	// FieldCall is the structured log field key for the call label.
	FieldCall = "ai_call"
	// FieldRun is the structured log field key for the pipeline run id.
	FieldRun = "run_id"
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

// CommonFields returns standard zap fields that describe the AI provider and model.
// Empty values are ignored to keep log entries compact when information is missing.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithRunID tags every entry of one pipeline run.
func WithRunID(logger *zap.Logger, runID string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldRun, Value: runID})...)
}

// CallFields describes the spend of a single remote call.
func CallFields(meta ai.CallMeta) []zap.Field {
	fields := StringFields(
		StringField{Key: FieldCall, Value: meta.Label},
		StringField{Key: FieldModel, Value: meta.Model},
	)
	return append(fields,
		zap.Int("prompt_tokens", meta.Usage.PromptTokens),
		zap.Int("cached_prompt_tokens", meta.Usage.CachedPromptTokens),
		zap.Int("completion_tokens", meta.Usage.CompletionTokens),
		zap.Float64("cost", meta.Cost),
	)
}
