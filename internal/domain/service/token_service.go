package service

import (
	"time"

	"identity/internal/domain/entity"
)

// TokenService signs identities into bearer tokens and verifies them.
type TokenService interface {
	// Sign creates a signed token embedding the identity, valid for the configured TTL.
	Sign(identity entity.Identity) (string, error)

	// Verify checks signature and expiry and decodes the embedded identity.
	Verify(token string) (*entity.TokenPayload, error)

	// TTL returns how long issued tokens stay valid.
	TTL() time.Duration
}
