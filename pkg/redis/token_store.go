package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/scoutsense/entitycache/pkg/auth"
)

const tokensKeySegment = "tokens"

// tokenRecord is the msgpack value stored per session
type tokenRecord struct {
	Access  string `msgpack:"a"`
	Refresh string `msgpack:"r"`
	SavedAt int64  `msgpack:"t"`
}

// TokenStore keeps auth tokens in Redis so several processes can share one
// session. Each Save resets the TTL.
type TokenStore struct {
	manager *Manager
	session string
	ttl     time.Duration
}

var _ auth.TokenStore = (*TokenStore)(nil)

// NewTokenStore stores the tokens of session under <prefix>:tokens:<session>
func NewTokenStore(m *Manager, session string) *TokenStore {
	if session == "" {
		session = "default"
	}
	return &TokenStore{manager: m, session: session, ttl: m.config.TokenTTL}
}

func (s *TokenStore) key() string {
	return s.manager.Key(tokensKeySegment, s.session)
}

// Load reads the session record; a missing key is ErrNoTokens
func (s *TokenStore) Load(ctx context.Context) (auth.Tokens, error) {
	var rec tokenRecord
	if err := s.manager.GetMsgpack(ctx, s.key(), &rec); err != nil {
		if IsKeyNotFound(err) {
			return auth.Tokens{}, auth.ErrNoTokens
		}
		return auth.Tokens{}, fmt.Errorf("load tokens: %w", err)
	}
	t := auth.Tokens{Access: rec.Access, Refresh: rec.Refresh}
	if t.IsZero() {
		return auth.Tokens{}, auth.ErrNoTokens
	}
	return t, nil
}

// Save writes the session record and resets its TTL
func (s *TokenStore) Save(ctx context.Context, t auth.Tokens) error {
	rec := tokenRecord{Access: t.Access, Refresh: t.Refresh, SavedAt: time.Now().Unix()}
	if err := s.manager.SetMsgpack(ctx, s.key(), rec, s.ttl); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

// Clear deletes the session record
func (s *TokenStore) Clear(ctx context.Context) error {
	return s.manager.Delete(ctx, s.key())
}

// ExpiresIn returns how long the session record lives on, zero when it never
// expires. A missing record is ErrNoTokens.
func (s *TokenStore) ExpiresIn(ctx context.Context) (time.Duration, error) {
	exists, err := s.manager.Exists(ctx, s.key())
	if err != nil {
		return 0, fmt.Errorf("token expiry: %w", err)
	}
	if !exists {
		return 0, auth.ErrNoTokens
	}
	ttl, err := s.manager.TTL(ctx, s.key())
	if err != nil {
		return 0, fmt.Errorf("token expiry: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// ClearAll removes the tokens of every session
func ClearAll(ctx context.Context, m *Manager) (int, error) {
	return m.InvalidatePattern(ctx, m.Key(tokensKeySegment, "*"))
}
