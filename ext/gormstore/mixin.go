package gormstore

import (
	"context"

	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/logf"
)

type Context interface {
	StatsStorageConfig() apfel.GormConfig
}

// Mixin provides a SQL entity store as an application mixin. The
// application must register an apfel.Gorm factory with the configured
// driver. Statistics sessions discover the store via sapp.Mixin.
type Mixin[C Context] struct {
	*SQL
}

func (m Mixin[C]) String() string {
	return "tgstats.storage"
}

func (m *Mixin[C]) Include(ctx context.Context, app apfel.MixinApp[C]) error {
	if m.SQL != nil {
		return nil
	}

	config := app.Config().StatsStorageConfig()
	if config.Driver != "postgres" {
		logf.Get(m).Warnf(ctx, "database driver is not postgres, "+
			"jsonb and uuid columns may not be supported")
	}

	db := &apfel.GormDB[C]{Config: config}
	if err := app.Use(ctx, db, false); err != nil {
		return err
	}

	sql := &SQL{Clock: app, DB: db.DB()}
	if err := sql.Init(ctx); err != nil {
		return err
	}

	m.SQL = sql
	return nil
}
