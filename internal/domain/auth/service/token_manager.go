package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/common"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	tokenIssuer      = "family-finance-tracker"
)

// Claims are the JWT claims carried by access and refresh tokens
type Claims struct {
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is returned on register, login and refresh
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenManager issues and validates tokens
type TokenManager interface {
	GenerateTokenPair(userID, email string) (*TokenPair, error)
	ValidateAccessToken(token string) (*Claims, error)
	ValidateRefreshToken(token string) (*Claims, error)
}

type tokenManager struct {
	accessSecret    []byte
	refreshSecret   []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

// NewTokenManager creates an HS256 token manager
func NewTokenManager(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) TokenManager {
	return &tokenManager{
		accessSecret:    accessSecret,
		refreshSecret:   refreshSecret,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		now:             time.Now,
	}
}

func (m *tokenManager) GenerateTokenPair(userID, email string) (*TokenPair, error) {
	now := m.now()
	accessExpiry := now.Add(m.accessTokenTTL)

	access, err := m.sign(m.accessSecret, userID, email, tokenTypeAccess, now, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := m.sign(m.refreshSecret, userID, email, tokenTypeRefresh, now, now.Add(m.refreshTokenTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExpiry,
	}, nil
}

func (m *tokenManager) ValidateAccessToken(token string) (*Claims, error) {
	return m.parse(m.accessSecret, token, tokenTypeAccess)
}

func (m *tokenManager) ValidateRefreshToken(token string) (*Claims, error) {
	return m.parse(m.refreshSecret, token, tokenTypeRefresh)
}

func (m *tokenManager) sign(secret []byte, userID, email, tokenType string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		UserID:    userID,
		Email:     email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *tokenManager) parse(secret []byte, token, tokenType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token expired: %w", common.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.TokenType != tokenType || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
