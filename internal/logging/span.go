package logging

import (
	"context"
	"fmt"

	"roundrobin/onboarding-service/internal/auth"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanSink records on the span carried by ctx and then writes to the console.
type SpanSink struct {
	next Sink
}

func NewSpanSink(next Sink) *SpanSink {
	return &SpanSink{next: next}
}

func (s *SpanSink) Info(ctx context.Context, source, message string, fields Fields) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(message, trace.WithAttributes(attributes(source, fields)...))
	s.next.Info(ctx, source, message, fields)
}

func (s *SpanSink) Error(ctx context.Context, source string, err error, fields Fields) {
	if err == nil || auth.IsAuthError(err) {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attributes(source, fields)...))
	span.SetStatus(codes.Error, err.Error())
	s.next.Error(ctx, source, err, fields)
}

func attributes(source string, fields Fields) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields)+1)
	attrs = append(attrs, attribute.String("log.source", source))
	for key, value := range fields {
		switch v := value.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprint(v)))
		}
	}
	return attrs
}
