// Package memory implements the user store on top of a portable gocloud docstore collection.
// The default mem:// collection keeps everything in process and is used for development and tests.
package memory

import (
	"context"
	"log/slog"
	"time"

	"identity/internal/domain/entity"
	"identity/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gocloud.dev/docstore"
	_ "gocloud.dev/docstore/memdocstore"
	"gocloud.dev/gcerrors"
)

// DefaultCollectionURL keys the in-memory collection by email, which makes email unique.
const DefaultCollectionURL = "mem://users/email"

type userDocument struct {
	Email     string    `docstore:"email"`
	ID        string    `docstore:"id"`
	Name      string    `docstore:"name"`
	Password  string    `docstore:"password"`
	CreatedAt time.Time `docstore:"createdAt"`
}

type userRepository struct {
	coll   *docstore.Collection
	logger *slog.Logger
}

// OpenCollection opens a docstore collection by URL.
func OpenCollection(ctx context.Context, url string) (*docstore.Collection, error) {
	coll, err := docstore.OpenCollection(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open collection %s", url)
	}

	return coll, nil
}

// NewUserRepository returns a UserRepository backed by coll.
// The collection must use email as its key field.
func NewUserRepository(coll *docstore.Collection, logger *slog.Logger) repository.UserRepository {
	return &userRepository{
		coll:   coll,
		logger: logger,
	}
}

func (repo *userRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	doc := &userDocument{Email: email}
	if err := repo.coll.Get(ctx, doc); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, repository.ErrUserNotFound
		}

		return nil, errors.Wrap(err, "failed to find user by email")
	}

	return toUserDomain(doc)
}

func (repo *userRepository) Create(ctx context.Context, user *entity.User) error {
	if err := repo.coll.Create(ctx, fromUserDomain(user)); err != nil {
		if gcerrors.Code(err) == gcerrors.AlreadyExists {
			return repository.ErrDuplicateEmail
		}

		return errors.Wrap(err, "failed to create user")
	}

	repo.logger.Debug("User document created", slog.String("userID", user.ID.String()))

	return nil
}

func toUserDomain(doc *userDocument) (*entity.User, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "stored user has malformed id %q", doc.ID)
	}

	return &entity.User{
		ID:        id,
		Name:      doc.Name,
		Email:     doc.Email,
		Password:  doc.Password,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func fromUserDomain(user *entity.User) *userDocument {
	return &userDocument{
		Email:     user.Email,
		ID:        user.ID.String(),
		Name:      user.Name,
		Password:  user.Password,
		CreatedAt: user.CreatedAt,
	}
}
