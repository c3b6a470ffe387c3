package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fundledger/internal/cache"
	"github.com/smallbiznis/fundledger/internal/clock"
	"github.com/smallbiznis/fundledger/internal/config"
	"github.com/smallbiznis/fundledger/internal/events"
	"github.com/smallbiznis/fundledger/internal/ledger"
	"github.com/smallbiznis/fundledger/internal/migration"
	"github.com/smallbiznis/fundledger/internal/observability"
	"github.com/smallbiznis/fundledger/internal/ratelimit"
	"github.com/smallbiznis/fundledger/internal/redisconn"
	"github.com/smallbiznis/fundledger/internal/server"
	"github.com/smallbiznis/fundledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		redisconn.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,

		// Ledger
		ledger.Module,
		events.Module,

		server.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.SnowflakeNode, err)
	}
	return node, nil
}
