// Package auth holds the authenticated identity shared by the domain services.
package auth

import (
	"context"

	"github.com/FACorreiaa/family-finance-tracker/pkg/interceptors"
)

// Identity is the signed-in user on whose behalf an operation runs
type Identity struct {
	UID   string
	Email string
}

// IsZero reports whether no user is signed in
func (i Identity) IsZero() bool {
	return i.UID == ""
}

// IdentityFromContext returns the identity placed in the context by the auth interceptor
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	uid, ok := interceptors.GetUserIDFromContext(ctx)
	if !ok {
		return Identity{}, false
	}
	email, _ := interceptors.GetUserEmailFromContext(ctx)
	return Identity{UID: uid, Email: email}, true
}
