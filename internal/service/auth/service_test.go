package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Validation happens before any store access, so a nil repository is safe for
// these paths.
func TestRegisterValidation(t *testing.T) {
	svc := NewService(nil, "secret")

	tests := []struct {
		name        string
		email       string
		password    string
		confirm     string
		displayName string
		want        error
	}{
		{"bad email", "not-an-email", "secret1", "secret1", "Alice", ErrInvalidEmail},
		{"missing domain", "alice@", "secret1", "secret1", "Alice", ErrInvalidEmail},
		{"short password", "alice@example.com", "abc", "abc", "Alice", ErrPasswordTooShort},
		{"mismatch", "alice@example.com", "secret1", "secret2", "Alice", ErrPasswordMismatch},
		{"no display name", "alice@example.com", "secret1", "secret1", "", ErrDisplayNameRequired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.email, tc.password, tc.confirm, tc.displayName)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestIsValidationError(t *testing.T) {
	for _, err := range []error{
		ErrInvalidEmail,
		ErrPasswordTooShort,
		ErrPasswordMismatch,
		ErrEmailTaken,
		ErrDisplayNameRequired,
	} {
		assert.True(t, IsValidationError(err))
	}

	assert.False(t, IsValidationError(errors.New("connection refused")))
	assert.False(t, IsValidationError(ErrInvalidCredentials), "credential failures map to 401, not 400")
	assert.False(t, IsValidationError(nil))
}
