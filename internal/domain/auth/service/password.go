package service

import (
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/common"
)

const minPasswordLength = 8

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword reports whether password matches the bcrypt hash
func ComparePassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// ValidatePassword enforces the minimum password policy
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return common.ErrWeakPassword
	}
	return nil
}

// ValidateEmail checks that email is a bare address
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return common.ErrInvalidEmail
	}
	return nil
}
