// Package repository persists user accounts in the document store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/common"
	"github.com/FACorreiaa/family-finance-tracker/pkg/docstore"
)

// UsersCollection is the document collection holding accounts
const UsersCollection = "auth_users"

// User is a registered account
type User struct {
	ID             uuid.UUID
	Email          string
	DisplayName    string
	HashedPassword string
	CreatedAt      time.Time
	LastLoginAt    *time.Time
}

// AuthRepository defines account persistence
type AuthRepository interface {
	CreateUser(ctx context.Context, email, hashedPassword, displayName string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
}

// DocStoreAuthRepository implements AuthRepository on a docstore.Store
type DocStoreAuthRepository struct {
	store docstore.Store
	now   func() time.Time
}

// NewDocStoreAuthRepository creates a repository over the given store
func NewDocStoreAuthRepository(store docstore.Store) *DocStoreAuthRepository {
	return &DocStoreAuthRepository{store: store, now: time.Now}
}

// CreateUser stores a new account; emails are unique case-insensitively
func (r *DocStoreAuthRepository) CreateUser(ctx context.Context, email, hashedPassword, displayName string) (*User, error) {
	email = normalizeEmail(email)

	if _, err := r.GetUserByEmail(ctx, email); err == nil {
		return nil, common.ErrUserAlreadyExists
	} else if !errors.Is(err, common.ErrUserNotFound) {
		return nil, err
	}

	user := &User{
		ID:             uuid.New(),
		Email:          email,
		DisplayName:    displayName,
		HashedPassword: hashedPassword,
		CreatedAt:      r.now().UTC(),
	}

	if err := r.store.Set(ctx, UsersCollection, user.ID.String(), toData(user)); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByEmail looks an account up by email
func (r *DocStoreAuthRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	docs, err := r.store.Find(ctx, docstore.Query{
		Path:  UsersCollection,
		Field: "email",
		Value: normalizeEmail(email),
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	if len(docs) == 0 {
		return nil, common.ErrUserNotFound
	}
	return fromDocument(docs[0])
}

// GetUserByID retrieves an account by id
func (r *DocStoreAuthRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	doc, err := r.store.Get(ctx, UsersCollection, id.String())
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return fromDocument(*doc)
}

// UpdateLastLogin stamps the account's last login time
func (r *DocStoreAuthRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	user, err := r.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	user.LastLoginAt = &now

	if err := r.store.Set(ctx, UsersCollection, id.String(), toData(user)); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toData(u *User) map[string]any {
	data := map[string]any{
		"email":          u.Email,
		"displayName":    u.DisplayName,
		"hashedPassword": u.HashedPassword,
		"createdAt":      u.CreatedAt.Format(time.RFC3339Nano),
	}
	if u.LastLoginAt != nil {
		data["lastLoginAt"] = u.LastLoginAt.Format(time.RFC3339Nano)
	}
	return data
}

func fromDocument(doc docstore.Document) (*User, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", doc.ID, err)
	}

	user := &User{
		ID:             id,
		Email:          stringField(doc.Data, "email"),
		DisplayName:    stringField(doc.Data, "displayName"),
		HashedPassword: stringField(doc.Data, "hashedPassword"),
	}
	if t, err := time.Parse(time.RFC3339Nano, stringField(doc.Data, "createdAt")); err == nil {
		user.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, stringField(doc.Data, "lastLoginAt")); err == nil {
		user.LastLoginAt = &t
	}
	return user, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
