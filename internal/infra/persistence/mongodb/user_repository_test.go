package mongodb

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"identity/internal/domain/entity"
	"identity/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUserRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("find by email", func(mt *mtest.T) {
		repo := NewUserRepository(mt.Coll, newDiscardLogger())
		id := uuid.New()
		createdAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, "auth.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id.String()},
			{Key: "name", Value: "Ana"},
			{Key: "email", Value: "ana@x.com"},
			{Key: "password", Value: "hashed"},
			{Key: "createdAt", Value: createdAt},
		}))

		user, err := repo.FindByEmail(context.Background(), "ana@x.com")
		require.NoError(mt, err)
		assert.Equal(mt, id, user.ID)
		assert.Equal(mt, "Ana", user.Name)
		assert.Equal(mt, "hashed", user.Password)
		assert.True(mt, createdAt.Equal(user.CreatedAt))
	})

	mt.Run("find missing", func(mt *mtest.T) {
		repo := NewUserRepository(mt.Coll, newDiscardLogger())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "auth.users", mtest.FirstBatch))

		user, err := repo.FindByEmail(context.Background(), "nobody@x.com")
		assert.Nil(mt, user)
		assert.ErrorIs(mt, err, repository.ErrUserNotFound)
	})

	mt.Run("find malformed id", func(mt *mtest.T) {
		repo := NewUserRepository(mt.Coll, newDiscardLogger())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "auth.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "not-a-uuid"},
			{Key: "email", Value: "ana@x.com"},
		}))

		_, err := repo.FindByEmail(context.Background(), "ana@x.com")
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "malformed id")
	})

	mt.Run("find command error", func(mt *mtest.T) {
		repo := NewUserRepository(mt.Coll, newDiscardLogger())
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad query",
			Name:    "BadValue",
		}))

		_, err := repo.FindByEmail(context.Background(), "ana@x.com")
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, repository.ErrUserNotFound)
	})

	mt.Run("create", func(mt *mtest.T) {
		repo := NewUserRepository(mt.Coll, newDiscardLogger())
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := repo.Create(context.Background(), entity.NewUser("Ana", "ana@x.com", "hashed"))
		assert.NoError(mt, err)
	})

	mt.Run("create duplicate", func(mt *mtest.T) {
		repo := NewUserRepository(mt.Coll, newDiscardLogger())
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: auth.users index: email_unique",
		}))

		err := repo.Create(context.Background(), entity.NewUser("Ana", "ana@x.com", "hashed"))
		assert.ErrorIs(mt, err, repository.ErrDuplicateEmail)
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		assert.NoError(mt, EnsureIndexes(context.Background(), mt.Coll))
	})
}

func TestFromUserDomain(t *testing.T) {
	user := entity.NewUser("Ana", "ana@x.com", "hashed")
	doc := fromUserDomain(user)

	back, err := toUserDomain(doc)
	require.NoError(t, err)
	assert.Equal(t, user, back)
}
