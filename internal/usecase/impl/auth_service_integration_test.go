package impl

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"identity/config"
	domainerrors "identity/internal/domain/errors"
	"identity/internal/infra/auth"
	"identity/internal/infra/persistence/memory"
	"identity/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/docstore/memdocstore"
	"golang.org/x/crypto/bcrypt"
)

func newIntegrationAuthService(t *testing.T, secret string) usecase.AuthUsecase {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	coll, err := memdocstore.OpenCollection("email", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = coll.Close() })

	cfg := &config.Config{}
	cfg.SecretKey.JWT = secret
	tokenService, err := auth.NewJWTService(cfg)
	require.NoError(t, err)

	return NewAuthService(AuthServiceParams{
		UserRepo:     memory.NewUserRepository(coll, logger),
		Hasher:       auth.NewBcryptHasherWithCost(bcrypt.MinCost),
		TokenService: tokenService,
		Logger:       logger,
	})
}

func TestAuthFlow_RegisterLoginVerify(t *testing.T) {
	svc := newIntegrationAuthService(t, "integration_secret")
	ctx := context.Background()

	registered, err := svc.RegisterUser(ctx, &usecase.RegisterUserInput{
		Name:     "Ana",
		Email:    "ana@x.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, registered.User.ID)
	assert.Equal(t, "Ana", registered.User.Name)
	assert.Equal(t, "ana@x.com", registered.User.Email)
	assert.NotEmpty(t, registered.Token)

	_, err = svc.RegisterUser(ctx, &usecase.RegisterUserInput{Name: "Other", Email: "ana@x.com", Password: "secret2"})
	assert.Equal(t, &domainerrors.Envelope{Status: 400, Message: "User already exists"}, domainerrors.ToEnvelope(err))

	loggedIn, err := svc.LoginUser(ctx, &usecase.LoginUserInput{Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, registered.User, loggedIn.User)

	verified, err := svc.VerifyToken(ctx, loggedIn.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User, verified.User)
	assert.NotEqual(t, loggedIn.Token, verified.Token)

	reissued, err := svc.VerifyToken(ctx, registered.Token)
	require.NoError(t, err)
	assert.NotEqual(t, registered.Token, reissued.Token)

	again, err := svc.VerifyToken(ctx, verified.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User, again.User)
}

func TestAuthFlow_LoginFailuresAreIndistinguishable(t *testing.T) {
	svc := newIntegrationAuthService(t, "integration_secret")
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, &usecase.RegisterUserInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, wrongPassword := svc.LoginUser(ctx, &usecase.LoginUserInput{Email: "ana@x.com", Password: "secret2"})
	_, unknownEmail := svc.LoginUser(ctx, &usecase.LoginUserInput{Email: "bob@x.com", Password: "secret1"})

	expected := &domainerrors.Envelope{Status: 400, Message: "User/Password not valid"}
	assert.Equal(t, expected, domainerrors.ToEnvelope(wrongPassword))
	assert.Equal(t, expected, domainerrors.ToEnvelope(unknownEmail))
}

func TestAuthFlow_TokenFromOtherSecretIsRejected(t *testing.T) {
	issuer := newIntegrationAuthService(t, "issuer_secret")
	verifier := newIntegrationAuthService(t, "verifier_secret")
	ctx := context.Background()

	registered, err := issuer.RegisterUser(ctx, &usecase.RegisterUserInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = verifier.VerifyToken(ctx, registered.Token)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)

	_, err = verifier.VerifyToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)
}

func TestAuthFlow_ConcurrentRegistrationKeepsOneRecord(t *testing.T) {
	svc := newIntegrationAuthService(t, "integration_secret")
	ctx := context.Background()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RegisterUser(ctx, &usecase.RegisterUserInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()

				return
			}
			assert.ErrorIs(t, err, domainerrors.ErrDuplicateUser)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestAuthFlow_OutputNeverContainsPassword(t *testing.T) {
	svc := newIntegrationAuthService(t, "integration_secret")
	ctx := context.Background()

	registered, err := svc.RegisterUser(ctx, &usecase.RegisterUserInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)
	loggedIn, err := svc.LoginUser(ctx, &usecase.LoginUserInput{Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)
	verified, err := svc.VerifyToken(ctx, loggedIn.Token)
	require.NoError(t, err)

	for _, output := range []*usecase.AuthOutput{registered, loggedIn, verified} {
		raw, err := json.Marshal(output.User)
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.NotContains(t, fields, "password")
		assert.ElementsMatch(t, []string{"id", "email", "name"}, keys(fields))
	}
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}
