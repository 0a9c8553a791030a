package persistence

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"identity/config"
	"identity/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func newParams(t *testing.T, driver string) (Params, *fxtest.Lifecycle) {
	lc := fxtest.NewLifecycle(t)
	cfg := &config.Config{}
	cfg.Store.Driver = driver

	return Params{
		Lc:     lc,
		Ctx:    context.Background(),
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, lc
}

func TestNewUserRepository_Memory(t *testing.T) {
	params, lc := newParams(t, config.StoreMemory)

	repo, err := NewUserRepository(params)
	require.NoError(t, err)

	lc.RequireStart()
	defer lc.RequireStop()

	ctx := context.Background()
	user := entity.NewUser("Ana", "provider@x.com", "hashed")
	require.NoError(t, repo.Create(ctx, user))

	found, err := repo.FindByEmail(ctx, "provider@x.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
}

func TestNewUserRepository_MissingSettings(t *testing.T) {
	for _, driver := range []string{config.StoreMongo, config.StorePostgres} {
		t.Run(driver, func(t *testing.T) {
			params, _ := newParams(t, driver)

			repo, err := NewUserRepository(params)
			assert.Nil(t, repo)
			assert.Error(t, err)
		})
	}
}

func TestNewUserRepository_UnknownDriver(t *testing.T) {
	params, _ := newParams(t, "redis")

	repo, err := NewUserRepository(params)
	assert.Nil(t, repo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}
