package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/helyotools/dbsentinel/internal/view"
)

const issuer = "dbsentinel"

// ErrTokenRevoked is returned by Parse for tokens ended by Revoke.
var ErrTokenRevoked = errors.New("token revoked")

// Claims is the payload of every view token.
type Claims struct {
	Username string `json:"username"`
	View     string `json:"view"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 view tokens. Revoked token IDs are
// held in memory until the token would have expired anyway.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> expiry
}

// NewTokenIssuer returns an issuer signing with secret; tokens live for ttl.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

// Issue creates a token for username in state st and returns it with its expiry.
func (i *TokenIssuer) Issue(username string, st view.State) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	id, err := newTokenID()
	if err != nil {
		return "", time.Time{}, err
	}
	claims := Claims{
		Username: username,
		View:     string(st),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, exp, nil
}

// Parse validates tokenStr and returns its claims and view state.
func (i *TokenIssuer) Parse(tokenStr string) (*Claims, view.State, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, "", err
	}
	if !token.Valid {
		return nil, "", errors.New("invalid token")
	}
	if i.isRevoked(claims.ID) {
		return nil, "", ErrTokenRevoked
	}
	st, err := view.Parse(claims.View)
	if err != nil {
		return nil, "", err
	}
	return claims, st, nil
}

// Revoke ends the token described by claims. Later Parse calls on it fail
// with ErrTokenRevoked.
func (i *TokenIssuer) Revoke(claims *Claims) {
	if claims == nil || claims.ID == "" {
		return
	}
	exp := i.now().Add(i.ttl)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.now()
	for id, until := range i.revoked {
		if now.After(until) {
			delete(i.revoked, id)
		}
	}
	i.revoked[claims.ID] = exp
}

func (i *TokenIssuer) isRevoked(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.revoked[id]
	return ok
}

func newTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
