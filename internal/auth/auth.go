// internal/auth/auth.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Service issues and verifies session tokens for players who signed up. The
// ed25519 key pair is generated at startup, so tokens do not survive a
// restart; they are a convenience for clients, not an authorization gate.
type Service struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	expire     time.Duration
}

// NewService generates a fresh key pair. expire <= 0 means tokens never expire.
func NewService(expire time.Duration) (*Service, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Service{privateKey: priv, publicKey: pub, expire: expire}, nil
}

// CreateToken signs a JWT with "sub" set to the player's username.
func (s *Service) CreateToken(username string) (string, error) {
	claims := jwt.MapClaims{"sub": username}
	if s.expire > 0 {
		claims["exp"] = time.Now().Add(s.expire).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// VerifyToken validates a token string and returns the username it was
// issued for.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return sub, nil
}
