package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/voyagekit/tariff/internal/clock"
	"github.com/voyagekit/tariff/internal/config"
	"github.com/voyagekit/tariff/internal/migration"
	"github.com/voyagekit/tariff/internal/observability"
	"github.com/voyagekit/tariff/internal/server"
	"github.com/voyagekit/tariff/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			nodeID = parsed
		}
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		panic(err)
	}
	return node
}
