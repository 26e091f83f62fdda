// Package handler implements the AuthService Connect RPC handlers.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/common"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/repository"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/service"
)

const (
	AuthServiceName = "finance.v1.AuthService"

	RegisterProcedure = "/" + AuthServiceName + "/Register"
	LoginProcedure    = "/" + AuthServiceName + "/Login"
	RefreshProcedure  = "/" + AuthServiceName + "/Refresh"
)

// PublicProcedures are reachable without an access token
var PublicProcedures = []string{RegisterProcedure, LoginProcedure, RefreshProcedure}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type AuthResponse struct {
	User         *User     `json:"user,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthHandler implements the authentication Connect handlers
type AuthHandler struct {
	svc *service.AuthService
}

// NewAuthHandler constructs a new handler
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// NewAuthServiceHandler mounts the handler's procedures and returns the path prefix to route
func NewAuthServiceHandler(h *AuthHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(RegisterProcedure, connect.NewUnaryHandler(RegisterProcedure, h.Register, opts...))
	mux.Handle(LoginProcedure, connect.NewUnaryHandler(LoginProcedure, h.Login, opts...))
	mux.Handle(RefreshProcedure, connect.NewUnaryHandler(RefreshProcedure, h.Refresh, opts...))
	return "/" + AuthServiceName + "/", mux
}

// Register creates an account
func (h *AuthHandler) Register(
	ctx context.Context,
	req *connect.Request[RegisterRequest],
) (*connect.Response[AuthResponse], error) {
	result, err := h.svc.RegisterUser(ctx, service.RegisterParams{
		Email:       req.Msg.Email,
		Password:    req.Msg.Password,
		DisplayName: req.Msg.DisplayName,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toAuthResponse(result.User, result.Tokens)), nil
}

// Login exchanges credentials for tokens
func (h *AuthHandler) Login(
	ctx context.Context,
	req *connect.Request[LoginRequest],
) (*connect.Response[AuthResponse], error) {
	result, err := h.svc.Login(ctx, service.LoginParams{
		Email:    req.Msg.Email,
		Password: req.Msg.Password,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toAuthResponse(result.User, result.Tokens)), nil
}

// Refresh exchanges a refresh token for a new token pair
func (h *AuthHandler) Refresh(
	ctx context.Context,
	req *connect.Request[RefreshRequest],
) (*connect.Response[AuthResponse], error) {
	tokens, err := h.svc.RefreshTokens(ctx, req.Msg.RefreshToken)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toAuthResponse(nil, tokens)), nil
}

func toAuthResponse(user *repository.User, tokens *service.TokenPair) *AuthResponse {
	resp := &AuthResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}
	if user != nil {
		resp.User = &User{
			ID:          user.ID.String(),
			Email:       user.Email,
			DisplayName: user.DisplayName,
			CreatedAt:   user.CreatedAt,
		}
	}
	return resp
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, common.ErrWeakPassword), errors.Is(err, common.ErrInvalidEmail):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, common.ErrUserAlreadyExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, common.ErrInvalidCredentials), errors.Is(err, common.ErrInvalidToken):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, common.ErrUserNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
