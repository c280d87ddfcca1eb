package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/pitstophq/pitstop/internal/cache"
	"github.com/pitstophq/pitstop/internal/clock"
	"github.com/pitstophq/pitstop/internal/config"
	"github.com/pitstophq/pitstop/internal/migration"
	"github.com/pitstophq/pitstop/internal/server"
	"github.com/pitstophq/pitstop/pkg/db"
	"github.com/pitstophq/pitstop/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		migration.Module,

		// Domains and HTTP surface; server.Module pulls in the service
		// modules and the booking purge scheduler.
		server.Module,
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
