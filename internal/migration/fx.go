package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/voyagekit/tariff/internal/config"
	"github.com/voyagekit/tariff/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if cfg.DefaultAgencyID != 0 {
			return seed.EnsureDefaultAgencyWithID(conn, cfg.DefaultAgencyID)
		}
		return seed.EnsureDefaultAgency(conn, node)
	}),
)
