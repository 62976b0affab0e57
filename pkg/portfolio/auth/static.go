// Package auth verifies admin credentials for login and re-authentication.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/portfolio-content/pkg/portfolio"
)

// Static verifies a single admin account against a bcrypt hash.
type Static struct {
	identifier string
	hash       []byte
}

var _ portfolio.Authenticator = (*Static)(nil)

// NewStatic creates an authenticator for identifier. passwordHash must be
// a bcrypt hash, as produced by HashCredential.
func NewStatic(identifier, passwordHash string) (*Static, error) {
	if identifier == "" {
		return nil, errors.New("admin identifier is required")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("invalid admin password hash: %w", err)
	}
	return &Static{identifier: normalize(identifier), hash: []byte(passwordHash)}, nil
}

func (s *Static) Verify(ctx context.Context, identifier, credential string) error {
	idOK := subtle.ConstantTimeCompare([]byte(normalize(identifier)), []byte(s.identifier)) == 1
	// always run bcrypt so unknown identifiers take as long as wrong passwords
	pwErr := bcrypt.CompareHashAndPassword(s.hash, []byte(credential))
	if !idOK || pwErr != nil {
		return &portfolio.AuthError{Identifier: identifier, Err: pwErr}
	}
	return nil
}

// HashCredential returns the bcrypt hash of credential at the default cost.
func HashCredential(credential string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash credential: %w", err)
	}
	return string(hash), nil
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
