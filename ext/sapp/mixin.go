// Package sapp integrates statistics clients into apfel applications.
package sapp

import (
	"context"

	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/logf"
	tgstats "github.com/jfk9w-go/telegram-stats-api"
)

type Context interface {
	apfel.PrometheusContext
	StatsConfig() tgstats.Config
}

// Mixin provides a statistics client as an application mixin. The
// transport and the entity store are not constructed here: any mixin
// implementing tgstats.Transport or tgstats.EntityStore is picked up
// after inclusion, so the application chooses both by registering the
// matching mixins. Until an entity store mixin shows up the client
// falls back to an in-memory store.
type Mixin[C Context] struct {
	client *tgstats.Client
}

func (m *Mixin[C]) String() string {
	return "tgstats.client"
}

// Client returns the statistics client. Transport remains nil until
// a transport mixin is included.
func (m *Mixin[C]) Client() *tgstats.Client {
	return m.client
}

func (m *Mixin[C]) Include(ctx context.Context, app apfel.MixinApp[C]) error {
	if m.client != nil {
		return nil
	}

	var metrics apfel.Prometheus[C]
	if err := app.Use(ctx, &metrics, false); err != nil {
		return err
	}

	m.client = &tgstats.Client{
		Store:   tgstats.NewMemoryStore(),
		Clock:   app,
		Metrics: metrics.Registry(),
		Config:  app.Config().StatsConfig(),
	}

	return nil
}

func (m *Mixin[C]) AfterInclude(ctx context.Context, app apfel.MixinApp[C], mixin apfel.Mixin[C]) error {
	if transport, ok := mixin.(tgstats.Transport); ok {
		m.client.Transport = transport
		logf.Get(m).Infof(ctx, "using transport [%s]", mixin)
	}

	if store, ok := mixin.(tgstats.EntityStore); ok {
		m.client.Store = store
		logf.Get(m).Infof(ctx, "using entity store [%s]", mixin)
	}

	return nil
}
