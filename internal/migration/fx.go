package migration

import (
	"context"

	"github.com/smallbiznis/fundledger/internal/config"
	"github.com/smallbiznis/fundledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType == db.TypeSQLite {
			log.Info("applying sqlite schema")
			return ApplySQLite(context.Background(), conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		log.Info("applying postgres migrations")
		return RunMigrations(sqlDB)
	}),
)
