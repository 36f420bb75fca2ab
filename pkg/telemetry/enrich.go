package telemetry

import (
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordGuardDecision annotates span with the outcome of one request guard
// (rate_limit, signature, allowlist).
func RecordGuardDecision(span trace.Span, guard string, blocked bool, reason string) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("guard.name", guard),
		attribute.Bool("guard.blocked", blocked),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String("guard.reason", reason))
	}
	span.SetAttributes(attribute.Bool("guard."+guard+".blocked", blocked))

	if blocked {
		span.AddEvent("guard.blocked", trace.WithAttributes(attrs...))
	}
}

// upstreamParamRedaction applies to the query parameters of WHM calls.
var upstreamParamRedaction = map[string]string{
	"whm.param.password":     RedactDrop,
	"whm.param.contactemail": RedactMask,
}

// RecordUpstreamCall records a WHM call and its redacted parameters on span.
func RecordUpstreamCall(span trace.Span, action string, params map[string]any, err error) {
	if span == nil || !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.String("whm.action", action))
	span.SetAttributes(RedactAttributes(upstreamParamRedaction, paramAttributes(params))...)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("whm.failed", true))
	}
}

func paramAttributes(params map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, attribute.String("whm.param."+k, fmt.Sprint(params[k])))
	}
	return attrs
}
