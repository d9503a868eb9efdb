package evaluation

import (
	"github.com/voyagekit/tariff/internal/evaluation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("evaluation.service",
	fx.Provide(service.NewService),
)
