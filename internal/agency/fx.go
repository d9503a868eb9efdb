package agency

import (
	"github.com/voyagekit/tariff/internal/agency/repository"
	"github.com/voyagekit/tariff/internal/agency/service"
	"go.uber.org/fx"
)

var Module = fx.Module("agency.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
