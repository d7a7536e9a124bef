package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/rentease/rentledger/internal/clock"
	"github.com/rentease/rentledger/internal/config"
	"github.com/rentease/rentledger/internal/migration"
	"github.com/rentease/rentledger/internal/observability"
	"github.com/rentease/rentledger/internal/scheduler"
	"github.com/rentease/rentledger/internal/server"
	"github.com/rentease/rentledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
