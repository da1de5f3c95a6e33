package logging

import (
	"context"
	"log/slog"

	"anitorrent/internal/services"
)

// ContextFields extracts the standardized attributes the context carries.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]Attr, 0, 2)
	if id, ok := services.ItemIDFromContext(ctx); ok {
		fields = append(fields, Int64(FieldItemID, id))
	}
	if session, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, String(FieldSessionID, session))
	}
	return fields
}

// WithContext returns a logger augmented with the attributes derived from
// the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
