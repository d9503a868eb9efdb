package override

import (
	"github.com/voyagekit/tariff/internal/override/repository"
	"github.com/voyagekit/tariff/internal/override/service"
	"go.uber.org/fx"
)

var Module = fx.Module("override.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
