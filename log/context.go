package log

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type correlationIDType int

const (
	requestIDKey correlationIDType = iota
	requestFieldsKey
)

// WithRequestID returns a context which knows its request ID.
// A request ID tracks a single incoming message or local operation across
// goroutines and retries, so that every log line produced on its behalf can
// be correlated.
func WithRequestID(ctx context.Context, requestID string, fields ...zap.Field) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	if len(fields) > 0 {
		ctx = context.WithValue(ctx, requestFieldsKey, fields)
	}
	return ctx
}

// WithNewRequestID does the same thing as WithRequestID but generates a new, random request ID.
func WithNewRequestID(ctx context.Context, fields ...zap.Field) context.Context {
	return WithRequestID(ctx, uuid.NewString(), fields...)
}

// ExtractRequestID extracts the request id from a context object.
func ExtractRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// ZContext returns the request fields stored in ctx, suitable for zap.Logger calls.
func ZContext(ctx context.Context) zap.Field {
	id, ok := ExtractRequestID(ctx)
	if !ok {
		return zap.Skip()
	}
	fields, _ := ctx.Value(requestFieldsKey).([]zap.Field)
	return zap.Object("request", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString("id", id)
		for _, f := range fields {
			f.AddTo(enc)
		}
		return nil
	}))
}
