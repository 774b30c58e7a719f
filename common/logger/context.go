package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are appended to every record logged with a context that carries them.
type LogFields struct {
	MessageID  *string // Redis stream message ID
	EnvelopeID *int64  // snowflake id assigned at ingress
	DeliveryID *string // X-GitHub-Delivery header
	EventType  *string // envelope type, e.g. "pull_request.opened"
	RowKey     *string // target feed record row key
	Component  string  // e.g. "activityfeed.worker"
}

// WithLogFields enriches ctx with structured log fields. Repeated calls
// merge, and newer non-nil/non-empty values win. Deadlines and
// cancellation of ctx are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields returns the fields carried by ctx, or an empty LogFields
// when none were set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields prefers the non-nil/non-empty values of next.
func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.EnvelopeID != nil {
		result.EnvelopeID = next.EnvelopeID
	}
	if next.DeliveryID != nil {
		result.DeliveryID = next.DeliveryID
	}
	if next.EventType != nil {
		result.EventType = next.EventType
	}
	if next.RowKey != nil {
		result.RowKey = next.RowKey
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr returns a pointer to v, for inline LogFields literals:
//
//	logger.WithLogFields(ctx, logger.LogFields{RowKey: logger.Ptr(rowKey)})
func Ptr[T any](v T) *T {
	return &v
}
