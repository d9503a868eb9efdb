package service

import (
	"math"

	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
)

// calculate turns the winning rule into a concrete amount. Fixed rules
// ignore the base amount; percentage rules apply value on a 0-100 scale.
// Negative inputs are rejected at rule-authoring time, not here.
func calculate(rule *ruledomain.ServiceRule, baseAmount float64) float64 {
	switch rule.CalculationType {
	case ruledomain.Fixed:
		return round2(rule.Value)
	case ruledomain.Percentage:
		return round2(baseAmount * rule.Value / 100)
	default:
		return 0
	}
}

// round2 rounds to 2 decimals, half away from zero, matching how the
// amounts are displayed on invoices.
func round2(v float64) float64 {
	if v < 0 {
		return -math.Floor(-v*100+0.5) / 100
	}
	return math.Floor(v*100+0.5) / 100
}
