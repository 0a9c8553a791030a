package errors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestToEnvelope(t *testing.T) {
	storeDown := errors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		expected Envelope
	}{
		{
			name:     "duplicate user",
			err:      errors.WithStack(ErrDuplicateUser),
			expected: Envelope{Status: 400, Message: "User already exists"},
		},
		{
			name:     "invalid credentials",
			err:      ErrInvalidCredentials.WrapMessage("password mismatch"),
			expected: Envelope{Status: 400, Message: "User/Password not valid"},
		},
		{
			name:     "invalid token hides the cause",
			err:      errors.Wrap(ErrInvalidToken, "token has invalid signature"),
			expected: Envelope{Status: 401, Message: "Invalid token"},
		},
		{
			name:     "validation details",
			err:      errors.WithStack(ErrValidationFailed.WithDetails("email is required")),
			expected: Envelope{Status: 400, Message: "Validation failed: email is required"},
		},
		{
			name:     "no handler",
			err:      ErrNoHandler,
			expected: Envelope{Status: 404, Message: "There is no matching message handler"},
		},
		{
			name:     "internal keeps the underlying message",
			err:      errors.WithStack(NewInternalError(errors.Wrap(storeDown, "find user"), "failed to look up user")),
			expected: Envelope{Status: 400, Message: "connection refused"},
		},
		{
			name:     "untyped error",
			err:      errors.Wrap(storeDown, "dial"),
			expected: Envelope{Status: 400, Message: "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, &tt.expected, ToEnvelope(tt.err))
		})
	}
}

func TestBaseError_IsIgnoresDetails(t *testing.T) {
	detailed := ErrValidationFailed.WithDetails("name is required")

	assert.ErrorIs(t, detailed, ErrValidationFailed)
	assert.NotErrorIs(t, detailed, ErrInvalidToken)
	assert.Empty(t, ErrValidationFailed.Details())
}

func TestInternalError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewInternalError(cause, "failed to create user")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to create user: disk full", err.Error())
	assert.Equal(t, "INTERNAL_ERROR", err.ErrorCode())
	assert.Equal(t, 400, err.Status())
	assert.Equal(t, "failed to create user", err.Details())
}
