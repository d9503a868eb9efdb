package tracing

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
)

// attribute keys permitted on spans; anything else is dropped so payload
// values never leak into traces.
var allowedSpanKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"agency_id":               {},
	"rule_type":               {},
	"applied_to_type":         {},
}

// SafeAttributes filters span attributes down to the allow list.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// SafeError returns an error whose message is safe to record on a span.
// Sentinel domain errors carry no payload data, so they pass through; any
// wrapped driver error is reduced to its sentinel text.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	unwrapped := errors.Unwrap(err)
	for unwrapped != nil {
		err = unwrapped
		unwrapped = errors.Unwrap(err)
	}
	return err
}
