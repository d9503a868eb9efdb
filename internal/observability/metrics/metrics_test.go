package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("agency_id", "123"),
		attribute.String("agent_email", "agent@example.com"),
		attribute.String("rule_type", "markup"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "agency_id" && attrs[1].Key != "agency_id" {
		t.Fatalf("expected agency_id to be retained")
	}
	if attrs[0].Key != "rule_type" && attrs[1].Key != "rule_type" {
		t.Fatalf("expected rule_type to be retained")
	}
}
