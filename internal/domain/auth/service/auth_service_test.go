package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/common"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/repository"
	"github.com/FACorreiaa/family-finance-tracker/pkg/docstore"
)

func newTestService() *AuthService {
	repo := repository.NewDocStoreAuthRepository(docstore.NewMemoryStore())
	tm := NewTokenManager([]byte("access-secret"), []byte("refresh-secret"), time.Hour, 24*time.Hour)
	return NewAuthService(repo, tm, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	registered, err := svc.RegisterUser(ctx, RegisterParams{Email: "ana@example.com", Password: "s3cret-pass", DisplayName: "Ana"})
	require.NoError(t, err)
	require.NotEmpty(t, registered.Tokens.AccessToken)

	identity, err := svc.ValidateAccessToken(ctx, registered.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID.String(), identity.UID)
	assert.Equal(t, "ana@example.com", identity.Email)

	loggedIn, err := svc.Login(ctx, LoginParams{Email: "ana@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, loggedIn.User.ID)

	refreshed, err := svc.RefreshTokens(ctx, loggedIn.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
}

func TestAuthService_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.RegisterUser(ctx, RegisterParams{Email: "ana@example.com", Password: "short"})
	assert.ErrorIs(t, err, common.ErrWeakPassword)

	_, err = svc.RegisterUser(ctx, RegisterParams{Email: "not-an-email", Password: "long-enough"})
	assert.ErrorIs(t, err, common.ErrInvalidEmail)

	_, err = svc.RegisterUser(ctx, RegisterParams{Email: "ana@example.com", Password: "long-enough"})
	require.NoError(t, err)

	_, err = svc.RegisterUser(ctx, RegisterParams{Email: "ana@example.com", Password: "long-enough"})
	assert.ErrorIs(t, err, common.ErrUserAlreadyExists)

	_, err = svc.Login(ctx, LoginParams{Email: "ana@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginParams{Email: "bob@example.com", Password: "long-enough"})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = svc.ValidateAccessToken(ctx, "")
	assert.Error(t, err)
}

func TestTokenManager(t *testing.T) {
	tm := NewTokenManager([]byte("a"), []byte("r"), time.Minute, time.Hour).(*tokenManager)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return now }

	pair, err := tm.GenerateTokenPair("user-1", "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), pair.ExpiresAt)

	claims, err := tm.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	// A refresh token is not accepted as an access token
	_, err = tm.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	now = now.Add(2 * time.Minute)
	_, err = tm.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = tm.ValidateRefreshToken(pair.RefreshToken)
	assert.NoError(t, err)
}

func TestPasswordHelpers(t *testing.T) {
	hashed, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, ComparePassword(hashed, "correct horse"))
	assert.False(t, ComparePassword(hashed, "wrong horse"))

	assert.NoError(t, ValidateEmail("ana@example.com"))
	assert.ErrorIs(t, ValidateEmail("Ana <ana@example.com>"), common.ErrInvalidEmail)
}
