package services

import "context"

type contextKey int

const (
	jobIDKey contextKey = iota
	engineIDKey
	requestIDKey
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithJobID tags ctx with the conversion job being processed.
func WithJobID(ctx context.Context, id string) context.Context {
	return withString(ctx, jobIDKey, id)
}

// JobIDFromContext returns the job tagged by WithJobID.
func JobIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, jobIDKey) }

// WithEngineID tags ctx with the engine serving the call.
func WithEngineID(ctx context.Context, id string) context.Context {
	return withString(ctx, engineIDKey, id)
}

// EngineIDFromContext returns the engine tagged by WithEngineID.
func EngineIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, engineIDKey) }

// WithRequestID tags ctx with a correlation id that ties log lines together.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id tagged by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}
