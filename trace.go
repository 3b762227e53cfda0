package persist

import (
	"context"

	"github.com/ztimson/var-perisist/pkg/activity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (p *Persist[T]) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("persist.key", p.key)))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// emit publishes an activity event. Persistence already succeeded, so hook
// failures are logged and dropped.
func (p *Persist[T]) emit(ctx context.Context, verb, value string) {
	if !p.emitter.Enabled() {
		return
	}
	event := activity.Event{
		Verb:  verb,
		Key:   p.key,
		Value: value,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		event.Metadata = map[string]any{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		}
	}
	if err := p.emitter.Emit(ctx, event); err != nil {
		p.logger.Warn("persist: activity hook failed", "verb", verb, "error", err)
	}
}
