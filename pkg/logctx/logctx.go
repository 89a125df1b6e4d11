package logctx

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys shared by middleware and services. Plain strings are used so
// gin.Context and context.Context lookups agree.
const (
	KeyLogger  = "logger"
	KeyTraceID = "traceID"
	KeyOwnerID = "owner_id"
)

// FromGin returns a request-scoped logger from gin.Context if present,
// otherwise returns the provided base logger.
func FromGin(c *gin.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return base
	}
	if l, ok := c.Get(KeyLogger); ok {
		if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
			return lg
		}
	}
	return FromCtx(c.Request.Context(), base)
}

// FromCtx returns a logger from context if set, otherwise enriches base with
// trace_id/owner_id found in the context.
func FromCtx(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if ctx == nil {
		return base
	}
	if lg, ok := ctx.Value(KeyLogger).(*zap.SugaredLogger); ok && lg != nil {
		return lg
	}
	var fields []interface{}
	if tid := TraceID(ctx); tid != "" {
		fields = append(fields, "trace_id", tid)
	}
	if oid := OwnerID(ctx); oid != "" {
		fields = append(fields, "owner_id", oid)
	}
	if len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}

// WithLogger stores l on ctx for FromCtx.
func WithLogger(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, KeyLogger, l)
}

func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(KeyTraceID).(string)
	return s
}

func OwnerID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(KeyOwnerID).(string)
	return s
}

// Detach keeps trace and owner values but drops cancellation, for work that
// outlives the request (async logs, deferred reconciliation).
func Detach(ctx context.Context) context.Context {
	out := context.Background()
	if ctx == nil {
		return out
	}
	if lg, ok := ctx.Value(KeyLogger).(*zap.SugaredLogger); ok && lg != nil {
		out = WithLogger(out, lg)
	}
	if tid := TraceID(ctx); tid != "" {
		out = context.WithValue(out, KeyTraceID, tid)
	}
	if oid := OwnerID(ctx); oid != "" {
		out = context.WithValue(out, KeyOwnerID, oid)
	}
	return out
}
