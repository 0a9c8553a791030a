// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"

	"identity/internal/domain/entity"
)

// --- Input DTOs ---

// RegisterUserInput defines the data required to register a new user.
type RegisterUserInput struct {
	Name     string
	Email    string
	Password string
}

// LoginUserInput defines the data required for a user to log in.
type LoginUserInput struct {
	Email    string
	Password string
}

// --- Output DTOs ---

// AuthOutput pairs the caller's identity with a freshly signed token.
type AuthOutput struct {
	User  entity.Identity `json:"user"`
	Token string          `json:"token"`
}

// AuthUsecase defines the authentication operations exposed to callers.
type AuthUsecase interface {
	RegisterUser(ctx context.Context, input *RegisterUserInput) (*AuthOutput, error)
	LoginUser(ctx context.Context, input *LoginUserInput) (*AuthOutput, error)
	VerifyToken(ctx context.Context, token string) (*AuthOutput, error)
}
