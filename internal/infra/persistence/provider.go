// Package persistence selects the user store implementation from configuration.
package persistence

import (
	"context"
	"log/slog"

	"identity/config"
	"identity/internal/domain/repository"
	"identity/internal/infra/persistence/memory"
	"identity/internal/infra/persistence/mongodb"
	"identity/internal/infra/persistence/postgres"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// Params holds dependencies for the user store, injected by Fx
type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// NewUserRepository creates the UserRepository named by store.driver and
// registers its connection lifecycle with the application.
func NewUserRepository(params Params) (repository.UserRepository, error) {
	logger := params.Logger

	switch params.Config.Store.Driver {
	case "", config.StoreMemory:
		coll, err := memory.OpenCollection(params.Ctx, memory.DefaultCollectionURL)
		if err != nil {
			return nil, err
		}
		params.Lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return errors.WithStack(coll.Close())
			},
		})
		logger.Warn("Using in-memory user store, users are lost on restart")

		return memory.NewUserRepository(coll, logger), nil

	case config.StoreMongo:
		coll, err := mongodb.New(mongodb.Params{
			Lifecycle: params.Lc,
			Config:    params.Config,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}

		return mongodb.NewUserRepository(coll, logger), nil

	case config.StorePostgres:
		db, err := postgres.New(postgres.Params{
			Lifecycle: params.Lc,
			Config:    params.Config,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}

		return postgres.NewUserRepository(db), nil

	default:
		return nil, errors.Errorf("unknown store driver: %s", params.Config.Store.Driver)
	}
}
