package service

import (
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
)

// selectWinner picks exactly one rule from a category's matching set:
// lowest priority value first, rule name ascending on ties so the outcome
// is reproducible regardless of snapshot order. Empty input means the
// category contributes nothing.
func selectWinner(rules []*ruledomain.ServiceRule) *ruledomain.ServiceRule {
	if len(rules) == 0 {
		return nil
	}

	winner := rules[0]
	for _, rule := range rules[1:] {
		if lessPrecedence(rule, winner) {
			winner = rule
		}
	}
	return winner
}

func lessPrecedence(a, b *ruledomain.ServiceRule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.RuleName < b.RuleName
}
