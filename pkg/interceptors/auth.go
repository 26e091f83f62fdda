package interceptors

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
)

// TokenValidator turns a bearer token into the caller's identity
type TokenValidator func(ctx context.Context, token string) (Principal, error)

// NewAuthInterceptor rejects requests without a valid bearer token, except for
// the listed public procedures which pass through unauthenticated.
func NewAuthInterceptor(validate TokenValidator, publicProcedures ...string) connect.UnaryInterceptorFunc {
	public := make(map[string]struct{}, len(publicProcedures))
	for _, p := range publicProcedures {
		public[p] = struct{}{}
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if _, ok := public[req.Spec().Procedure]; ok {
				return next(ctx, req)
			}

			token, ok := bearerToken(req.Header().Get("Authorization"))
			if !ok {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("missing bearer token"))
			}

			principal, err := validate(ctx, token)
			if err != nil || principal.UserID == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or expired token"))
			}

			return next(WithPrincipal(ctx, principal), req)
		}
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
