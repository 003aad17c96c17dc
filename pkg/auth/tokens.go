package auth

import (
	"context"
	"sync"
)

// Tokens is the credential pair issued by the API
type Tokens struct {
	Access  string `json:"access" msgpack:"access"`
	Refresh string `json:"refresh" msgpack:"refresh"`
}

// IsZero reports whether no token is set
func (t Tokens) IsZero() bool {
	return t.Access == "" && t.Refresh == ""
}

// TokenStore persists the current tokens.
// Load returns ErrNoTokens when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (Tokens, error)
	Save(ctx context.Context, t Tokens) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps tokens in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	tokens Tokens
}

// NewMemoryStore creates a store holding t
func NewMemoryStore(t Tokens) *MemoryStore {
	return &MemoryStore{tokens: t}
}

// Load returns the held tokens or ErrNoTokens
func (s *MemoryStore) Load(context.Context) (Tokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens.IsZero() {
		return Tokens{}, ErrNoTokens
	}
	return s.tokens, nil
}

// Save replaces the held tokens
func (s *MemoryStore) Save(_ context.Context, t Tokens) error {
	s.mu.Lock()
	s.tokens = t
	s.mu.Unlock()
	return nil
}

// Clear forgets the held tokens
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.tokens = Tokens{}
	s.mu.Unlock()
	return nil
}
