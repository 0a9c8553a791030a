// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"errors"

	"identity/internal/domain/entity"
)

var (
	// ErrUserNotFound is returned when no user matches a lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateEmail is returned when a user with the same email is already stored.
	ErrDuplicateEmail = errors.New("email already exists")
)

// UserRepository defines the operations the service needs from the user store.
// Email is the unique key of a user record.
type UserRepository interface {
	// FindByEmail retrieves a single user by their email address.
	FindByEmail(ctx context.Context, email string) (*entity.User, error)

	// Create persists a new user. It returns ErrDuplicateEmail when the email is taken.
	Create(ctx context.Context, user *entity.User) error
}
