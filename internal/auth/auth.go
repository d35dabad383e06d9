// Package auth verifies dashboard credentials and issues the signed view
// tokens that carry a client's view state between requests.
//
// Credential checks sit behind the Authenticator interface so the backend
// can be swapped: a single bcrypt-hashed operator from config, or a sqlite
// users table managed with `dbsentinel user add`.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/helyotools/dbsentinel/internal/config"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator verifies a username/password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) error
}

// HashPassword returns the bcrypt hash stored for a password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}

// StaticAuthenticator accepts exactly one operator configured up front.
type StaticAuthenticator struct {
	username string
	hash     []byte
}

// NewStaticAuthenticator returns an authenticator for one user with a bcrypt hash.
func NewStaticAuthenticator(username, passwordHash string) (*StaticAuthenticator, error) {
	if username == "" || passwordHash == "" {
		return nil, errors.New("static authenticator needs a username and a password hash")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("admin_pass_hash is not a bcrypt hash: %w", err)
	}
	return &StaticAuthenticator{username: username, hash: []byte(passwordHash)}, nil
}

// Authenticate implements Authenticator.
func (a *StaticAuthenticator) Authenticate(_ context.Context, username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// Always run bcrypt so an unknown user costs the same as a bad password.
	passErr := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
	if !userOK || passErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// FromConfig builds the Authenticator selected by cfg.AuthBackend.
// The returned close function releases backend resources and is never nil.
func FromConfig(cfg *config.Config) (Authenticator, func() error, error) {
	noop := func() error { return nil }
	switch cfg.AuthBackend {
	case config.AuthBackendStatic, "":
		a, err := NewStaticAuthenticator(cfg.AdminUser, cfg.AdminPassHash)
		if err != nil {
			return nil, noop, err
		}
		return a, noop, nil
	case config.AuthBackendSQLite:
		s, err := OpenUserStore(cfg.UsersDBPath)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported auth_backend %q", cfg.AuthBackend)
	}
}
