package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// APIKeyPrefix starts every generated key
const APIKeyPrefix = "sk_"

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrRevokedAPIKey = errors.New("API key has been revoked")
	ErrExpiredAPIKey = errors.New("API key has expired")
)

// APIKey is a long-lived credential bound to a user
type APIKey struct {
	Key       string     `json:"key,omitempty"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// APIKeyManager holds API keys in memory, indexed by the SHA-256 of the key
// so the plaintext is never kept after issue.
type APIKeyManager struct {
	mu   sync.RWMutex
	keys map[string]*APIKey
}

// NewAPIKeyManager creates an empty manager
func NewAPIKeyManager() *APIKeyManager {
	return &APIKeyManager{keys: make(map[string]*APIKey)}
}

func digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Generate creates a random key for userID. The returned APIKey is the only
// place the plaintext key appears.
func (m *APIKeyManager) Generate(userID, name string, expiresAt *time.Time) (*APIKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	key := APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	if err := m.Register(key, userID, name, expiresAt); err != nil {
		return nil, err
	}

	return &APIKey{
		Key:       key,
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}, nil
}

// Register adds an externally provisioned key, e.g. one from the config file
func (m *APIKeyManager) Register(key, userID, name string, expiresAt *time.Time) error {
	if key == "" || userID == "" {
		return errors.New("key and user ID are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d := digest(key)
	if _, exists := m.keys[d]; exists {
		return errors.New("API key already registered")
	}
	m.keys[d] = &APIKey{
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	return nil
}

// Verify returns the key record if key is known, unrevoked and unexpired
func (m *APIKeyManager) Verify(key string) (*APIKey, error) {
	m.mu.RLock()
	rec, ok := m.keys[digest(key)]
	m.mu.RUnlock()

	switch {
	case !ok:
		return nil, ErrInvalidAPIKey
	case rec.Revoked:
		return nil, ErrRevokedAPIKey
	case rec.ExpiresAt != nil && time.Now().After(*rec.ExpiresAt):
		return nil, ErrExpiredAPIKey
	}

	c := *rec
	return &c, nil
}

// Revoke disables key
func (m *APIKeyManager) Revoke(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.keys[digest(key)]
	if !ok {
		return ErrInvalidAPIKey
	}
	rec.Revoked = true
	return nil
}

// Count returns the number of unrevoked keys
func (m *APIKeyManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, rec := range m.keys {
		if !rec.Revoked {
			n++
		}
	}
	return n
}
