package cache

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
)

const defaultSnapshotTTL = 30 * time.Second

// RuleSnapshotCache stores per-agency active rule snapshots so repeated
// evaluations within a short window skip the store read. Writes to the rule
// store must invalidate the owning agency's entry.
type RuleSnapshotCache interface {
	Get(agencyID snowflake.ID) ([]ruledomain.ServiceRule, bool)
	Set(agencyID snowflake.ID, rules []ruledomain.ServiceRule)
	Invalidate(agencyID snowflake.ID)
}

type ruleSnapshotCache struct {
	rules Cache[string, []ruledomain.ServiceRule]
	ttl   time.Duration
}

// NewRuleSnapshotCache returns an in-memory snapshot cache. A non-positive
// ttl falls back to the default.
func NewRuleSnapshotCache(ttl time.Duration) RuleSnapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &ruleSnapshotCache{
		rules: NewTTLCache[string, []ruledomain.ServiceRule](),
		ttl:   ttl,
	}
}

func (c *ruleSnapshotCache) Get(agencyID snowflake.ID) ([]ruledomain.ServiceRule, bool) {
	return c.rules.Get(snapshotKey(agencyID))
}

func (c *ruleSnapshotCache) Set(agencyID snowflake.ID, rules []ruledomain.ServiceRule) {
	c.rules.Set(snapshotKey(agencyID), rules, c.ttl)
}

func (c *ruleSnapshotCache) Invalidate(agencyID snowflake.ID) {
	c.rules.Delete(snapshotKey(agencyID))
}

func snapshotKey(agencyID snowflake.ID) string {
	return strconv.FormatInt(agencyID.Int64(), 10)
}
