package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/common"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/repository"
)

// RegisterParams contains the required data for user registration.
type RegisterParams struct {
	Email       string
	Password    string
	DisplayName string
}

// LoginParams represents the payload for a login attempt.
type LoginParams struct {
	Email    string
	Password string
}

// AuthResult is produced after a successful registration or login.
type AuthResult struct {
	User   *repository.User
	Tokens *TokenPair
}

// AuthService coordinates account business logic.
type AuthService struct {
	repo         repository.AuthRepository
	tokenManager TokenManager
	logger       *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(repo repository.AuthRepository, tokenManager TokenManager, logger *slog.Logger) *AuthService {
	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
		logger:       logger,
	}
}

// RegisterUser creates a new account and issues tokens.
func (s *AuthService) RegisterUser(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	if err := ValidateEmail(params.Email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(params.Password); err != nil {
		return nil, err
	}

	hashedPassword, err := HashPassword(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, params.Email, hashedPassword, params.DisplayName)
	if err != nil {
		return nil, err
	}

	tokens, err := s.tokenManager.GenerateTokenPair(user.ID.String(), user.Email)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID.String()))
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Login authenticates a user against stored credentials.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (*AuthResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, params.Email)
	if errors.Is(err, common.ErrUserNotFound) {
		return nil, common.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !ComparePassword(user.HashedPassword, params.Password) {
		return nil, common.ErrInvalidCredentials
	}

	tokens, err := s.tokenManager.GenerateTokenPair(user.ID.String(), user.Email)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login", slog.Any("error", err))
	}

	return &AuthResult{User: user, Tokens: tokens}, nil
}

// RefreshTokens validates the refresh token and issues a new pair.
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokenManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.tokenManager.GenerateTokenPair(user.ID.String(), user.Email)
}

// ValidateAccessToken validates an access token and returns the caller's identity.
func (s *AuthService) ValidateAccessToken(_ context.Context, accessToken string) (auth.Identity, error) {
	if accessToken == "" {
		return auth.Identity{}, fmt.Errorf("access token required")
	}
	claims, err := s.tokenManager.ValidateAccessToken(accessToken)
	if err != nil {
		return auth.Identity{}, err
	}
	return auth.Identity{UID: claims.UserID, Email: claims.Email}, nil
}
