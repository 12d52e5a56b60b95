package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"hydra-waf/internal/models"
)

// Identity is what a valid token resolves to.
type Identity struct {
	UserID   int64
	Username string
	Role     string
}

// Sessions is the process-local set of valid bearer tokens. Tokens are
// 256-bit random hex minted at login and vanish on restart.
type Sessions struct {
	mu     sync.Mutex
	tokens map[string]Identity
}

func NewSessions() *Sessions {
	return &Sessions{tokens: make(map[string]Identity)}
}

// Mint creates and registers a fresh token for the user.
func (s *Sessions) Mint(user models.User) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	s.tokens[token] = Identity{UserID: user.UserID, Username: user.Username, Role: user.Role}
	s.mu.Unlock()
	return token, nil
}

// Lookup resolves a token to its identity.
func (s *Sessions) Lookup(token string) (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	return id, ok
}

// Revoke removes a token from the valid set.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// HashPassword produces the stored bcrypt hash for a password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword compares a stored hash against a candidate password.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
