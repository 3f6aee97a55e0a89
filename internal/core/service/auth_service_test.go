package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/mini-oms/internal/adapter/auth"
	"github.com/rl1809/mini-oms/internal/adapter/storage"
	"github.com/rl1809/mini-oms/internal/core/domain"
)

func newAuthService() *AuthService {
	return NewAuthService(storage.NewMemoryAdapter(), auth.NewBcryptHasher(bcrypt.MinCost), auth.NewTokenManager("test-secret", time.Hour))
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "Alice@Example.com", Password: "pw", Role: "buyer"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, domain.RoleBuyer, res.User.Role)
	assert.NotEqual(t, "pw", res.User.PasswordHash)

	principal, err := svc.Authenticate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.Principal{UserID: res.User.ID, Role: domain.RoleBuyer}, principal)

	logged, err := svc.Login(ctx, "alice@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, logged.User.ID)

	_, err = svc.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Login(ctx, "nobody@example.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_Conflicts(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "pw", Role: "SUPPLIER"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Username: "bobby", Email: "bob@example.com", Password: "pw", Role: "BUYER"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "other@example.com", Password: "pw", Role: "BUYER"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegister_Validation(t *testing.T) {
	svc := newAuthService()

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"missing password", RegisterInput{Username: "u", Email: "u@example.com", Role: "BUYER"}},
		{"bad role", RegisterInput{Username: "u", Email: "u@example.com", Password: "pw", Role: "OWNER"}},
		{"bad email", RegisterInput{Username: "u", Email: "not-an-email", Password: "pw", Role: "BUYER"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAuthenticate_Rejects(t *testing.T) {
	svc := newAuthService()

	_, err := svc.Authenticate("")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Authenticate("garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
