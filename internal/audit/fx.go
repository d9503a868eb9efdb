package audit

import (
	"github.com/voyagekit/tariff/internal/audit/repository"
	"github.com/voyagekit/tariff/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewRetryQueue),
	fx.Provide(service.NewService),
	fx.Provide(service.NewReconciler),
	fx.Invoke(func(*service.Reconciler) {}),
)
