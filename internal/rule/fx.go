package rule

import (
	"github.com/voyagekit/tariff/internal/cache"
	"github.com/voyagekit/tariff/internal/config"
	"github.com/voyagekit/tariff/internal/rule/repository"
	"github.com/voyagekit/tariff/internal/rule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rule.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideSnapshotCache),
	fx.Provide(service.NewService),
)

func provideSnapshotCache(holder *config.EngineConfigHolder) cache.RuleSnapshotCache {
	return cache.NewRuleSnapshotCache(holder.Get().SnapshotCacheTTL)
}
