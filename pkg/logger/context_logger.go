package logger

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	traceIDKey       contextKey = "trace_id"
	roomIDKey        contextKey = "room_id"
	participantIDKey contextKey = "participant_id"
)

// WithTraceID stores a trace id for ContextLogger.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// WithRoom stores the room and participant a call runs under.
func WithRoom(ctx context.Context, roomID, participantID string) context.Context {
	ctx = context.WithValue(ctx, roomIDKey, roomID)
	return context.WithValue(ctx, participantIDKey, participantID)
}

// ContextLogger attaches call identifiers found in a context to log lines.
type ContextLogger struct {
	logger *zap.SugaredLogger
}

func NewContextLogger(logger *zap.Logger) *ContextLogger {
	return &ContextLogger{logger: logger.Sugar()}
}

// For returns a logger carrying whichever identifiers ctx holds.
func (cl *ContextLogger) For(ctx context.Context) *zap.SugaredLogger {
	var kv []interface{}
	for _, key := range []contextKey{traceIDKey, roomIDKey, participantIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			kv = append(kv, string(key), v)
		}
	}
	if len(kv) == 0 {
		return cl.logger
	}
	return cl.logger.With(kv...)
}

func (cl *ContextLogger) Base() *zap.SugaredLogger {
	return cl.logger
}
