package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"invitely/pkg/storage"
)

// TokenStore holds the bearer token used against the remote service
type TokenStore interface {
	Token() string
	SetToken(token string)
	Clear()
}

// KVTokens persists the token in the local key-value store
type KVTokens struct {
	mutex sync.Mutex
	kv    storage.KV
	key   string
	log   *log.Logger
}

// NewKVTokens creates a token store backed by kv
func NewKVTokens(kv storage.KV, logger *log.Logger) *KVTokens {
	if logger == nil {
		logger = log.Default()
	}
	return &KVTokens{kv: kv, key: storage.TokenKey, log: logger}
}

// Token returns the stored token, or "" when none
func (t *KVTokens) Token() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	b, err := t.kv.Get(context.Background(), t.key)
	if err != nil {
		t.log.Printf("read token: %v", err)
		return ""
	}
	return string(b)
}

// SetToken stores token
func (t *KVTokens) SetToken(token string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if err := t.kv.Set(context.Background(), t.key, []byte(token)); err != nil {
		t.log.Printf("store token: %v", err)
	}
}

// Clear removes the token
func (t *KVTokens) Clear() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if err := t.kv.Delete(context.Background(), t.key); err != nil {
		t.log.Printf("clear token: %v", err)
	}
}

// tokenExpired inspects the exp claim without verifying the signature;
// the server stays the authority, this only avoids requests that are
// bound to fail. Tokens that are not JWTs never count as expired.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
