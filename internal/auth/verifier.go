package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Verification is the outcome of checking a password against a stored
// credential.
type Verification struct {
	Valid bool
	// NeedsUpgrade is set when the stored credential matched but is not a
	// bcrypt hash and should be replaced.
	NeedsUpgrade bool
}

// Strategy checks a password against one kind of stored credential.
type Strategy interface {
	Name() string
	Verify(stored, password string) Verification
}

type bcryptStrategy struct{}

func (bcryptStrategy) Name() string { return "bcrypt" }

func (bcryptStrategy) Verify(stored, password string) Verification {
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
	return Verification{Valid: err == nil}
}

// plaintextStrategy accepts credentials stored before passwords were hashed.
// A stored bcrypt hash is never compared as plaintext.
type plaintextStrategy struct{}

func (plaintextStrategy) Name() string { return "plaintext" }

func (plaintextStrategy) Verify(stored, password string) Verification {
	if stored == "" || isBcryptHash(stored) {
		return Verification{}
	}
	ok := subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
	return Verification{Valid: ok, NeedsUpgrade: ok}
}

func isBcryptHash(stored string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(stored, prefix) {
			return true
		}
	}
	return false
}

// CredentialVerifier tries its strategies in order and stops at the first
// match.
type CredentialVerifier struct {
	strategies []Strategy
	cost       int
}

// NewCredentialVerifier checks bcrypt hashes first, then legacy plaintext.
func NewCredentialVerifier(cost int) *CredentialVerifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialVerifier{
		strategies: []Strategy{bcryptStrategy{}, plaintextStrategy{}},
		cost:       cost,
	}
}

func (v *CredentialVerifier) Verify(stored, password string) Verification {
	if password == "" {
		return Verification{}
	}
	for _, s := range v.strategies {
		if res := s.Verify(stored, password); res.Valid {
			return res
		}
	}
	return Verification{}
}

// Hash returns the bcrypt hash to store for password.
func (v *CredentialVerifier) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("auth: empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
