// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// User is an account registered with the service.
// Password always holds a one-way hash and never leaves the process.
type User struct {
	ID        uuid.UUID // Generated when the user is created.
	Name      string    // Display name.
	Email     string    // Unique login identifier.
	Password  string    // Salted password hash.
	CreatedAt time.Time // Timestamp of registration.
}

// NewUser builds a user with a freshly generated ID.
func NewUser(name, email, passwordHash string) *User {
	return &User{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Password:  passwordHash,
		CreatedAt: time.Now().UTC(),
	}
}

// Identity returns the projection of the user that is safe to hand to callers.
func (u *User) Identity() Identity {
	return Identity{
		ID:    u.ID.String(),
		Email: u.Email,
		Name:  u.Name,
	}
}

// Identity is the subset of a User embedded in tokens and returned to callers.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// TokenPayload is an Identity decoded from a verified token.
type TokenPayload struct {
	Identity
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
