// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"log/slog"

	deliverycontext "identity/internal/delivery/context"
	"identity/internal/domain/entity"
	domainerrors "identity/internal/domain/errors"
	"identity/internal/domain/repository"
	"identity/internal/domain/service"
	"identity/internal/usecase"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// authService implements the AuthUsecase interface.
type authService struct {
	userRepo     repository.UserRepository
	hasher       service.PasswordHasher
	tokenService service.TokenService
	logger       *slog.Logger
}

// AuthServiceParams holds dependencies for AuthService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	UserRepo     repository.UserRepository
	Hasher       service.PasswordHasher
	TokenService service.TokenService
	Logger       *slog.Logger
}

// NewAuthService is the constructor for authService. It receives all dependencies as interfaces.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	return &authService{
		userRepo:     params.UserRepo,
		hasher:       params.Hasher,
		tokenService: params.TokenService,
		logger:       params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// RegisterUser creates the account and signs a token for it.
func (srv *authService) RegisterUser(ctx context.Context, input *usecase.RegisterUserInput) (*usecase.AuthOutput, error) {
	srv.log(ctx).Info("Starting user registration", slog.String("email", input.Email))

	_, err := srv.userRepo.FindByEmail(ctx, input.Email)
	if err == nil {
		srv.log(ctx).Warn("Registration rejected, email already registered", slog.String("email", input.Email))

		return nil, errors.WithStack(domainerrors.ErrDuplicateUser)
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, domainerrors.NewInternalError(err, "failed to look up user during registration")
	}

	hashedPassword, err := srv.hasher.Hash(input.Password)
	if err != nil {
		srv.log(ctx).Error("Failed to hash password during registration", slog.Any("error", err))

		return nil, domainerrors.NewInternalError(err, "failed to hash password during registration")
	}

	user := entity.NewUser(input.Name, input.Email, hashedPassword)
	if err := srv.userRepo.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration for the same email.
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, errors.WithStack(domainerrors.ErrDuplicateUser)
		}
		srv.log(ctx).Error("Failed to create user", slog.Any("error", err))

		return nil, domainerrors.NewInternalError(err, "failed to create user during registration")
	}

	output, err := srv.issue(user.Identity())
	if err != nil {
		return nil, err
	}

	srv.log(ctx).Debug("Registration completed", slog.String("userID", output.User.ID))

	return output, nil
}

// LoginUser checks the credentials and signs a token for the stored identity.
// An unknown email and a wrong password produce the same error.
func (srv *authService) LoginUser(ctx context.Context, input *usecase.LoginUserInput) (*usecase.AuthOutput, error) {
	user, err := srv.userRepo.FindByEmail(ctx, input.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		srv.log(ctx).Info("Login failed", slog.String("email", input.Email))

		return nil, errors.WithStack(domainerrors.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, domainerrors.NewInternalError(err, "failed to look up user during login")
	}

	if !srv.hasher.Check(input.Password, user.Password) {
		srv.log(ctx).Info("Login failed", slog.String("email", input.Email))

		return nil, errors.WithStack(domainerrors.ErrInvalidCredentials)
	}

	return srv.issue(user.Identity())
}

// VerifyToken validates the token and re-signs a fresh one for the same identity.
// The store is not consulted, a valid token is trusted until it expires.
func (srv *authService) VerifyToken(ctx context.Context, token string) (*usecase.AuthOutput, error) {
	payload, err := srv.tokenService.Verify(token)
	if err != nil {
		srv.log(ctx).Debug("Token verification failed", slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrInvalidToken, err.Error())
	}

	return srv.issue(payload.Identity)
}

// issue signs a token for identity. Only id, email and name are embedded.
func (srv *authService) issue(identity entity.Identity) (*usecase.AuthOutput, error) {
	token, err := srv.tokenService.Sign(identity)
	if err != nil {
		return nil, domainerrors.NewInternalError(err, "failed to sign token")
	}

	return &usecase.AuthOutput{
		User:  identity,
		Token: token,
	}, nil
}
