package service

import (
	"strings"

	evaldomain "github.com/voyagekit/tariff/internal/evaluation/domain"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
)

// ruleMatches reports whether every constrained condition field admits the
// transaction's value. An empty list matches anything; a non-empty list
// requires case-insensitive membership, so a transaction missing a
// constrained attribute never matches.
func ruleMatches(rule *ruledomain.ServiceRule, txn evaldomain.TransactionContext) bool {
	c := rule.Conditions
	return memberOf(c.Suppliers, txn.Supplier) &&
		memberOf(c.RouteOrigins, txn.RouteOrigin) &&
		memberOf(c.RouteDestinations, txn.RouteDestination) &&
		memberOf(c.AgentEmails, txn.AgentEmail) &&
		memberOf(c.ClientTypes, txn.ClientType) &&
		memberOf(c.BookingClasses, txn.BookingClass) &&
		memberOf(c.Currencies, txn.Currency)
}

func memberOf(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return false
	}
	for _, candidate := range allowed {
		if strings.ToLower(strings.TrimSpace(candidate)) == v {
			return true
		}
	}
	return false
}
