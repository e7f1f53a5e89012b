package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldProvider  = "ai_provider"
	FieldModel     = "ai_model"
	FieldSessionID = "session_id"
	FieldOperation = "operation"
	FieldSuccess   = "success"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts key/value pairs into zap fields. Entries with a blank
// key or value are dropped.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		value := strings.TrimSpace(field.Value)
		if key == "" || value == "" {
			continue
		}
		result = append(result, zap.String(key, value))
	}
	return result
}

// WithFields attaches fields to the logger, falling back to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// CommonFields describes the agent runtime provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// SessionFields identifies the conversation a log entry belongs to.
func SessionFields(sessionID string) []zap.Field {
	return StringFields(StringField{Key: FieldSessionID, Value: sessionID})
}

func WithSession(logger *zap.Logger, sessionID string) *zap.Logger {
	return WithFields(logger, SessionFields(sessionID)...)
}

// OperationFields reports the outcome of a call into an external collaborator.
func OperationFields(operation string, err error) []zap.Field {
	fields := []zap.Field{
		zap.String(FieldOperation, operation),
		zap.Bool(FieldSuccess, err == nil),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

// LogOperation writes one operation outcome at info level, or warn when it failed.
func LogOperation(logger *zap.Logger, operation string, err error, fields ...zap.Field) {
	if logger == nil {
		return
	}

	fields = append(OperationFields(operation, err), fields...)
	if err != nil {
		logger.Warn("operation failed", fields...)
		return
	}
	logger.Info("operation completed", fields...)
}
