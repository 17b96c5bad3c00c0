package client

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials holds the session tokens. Safe for concurrent use.
type Credentials struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	now          func() time.Time
}

func NewCredentials(accessToken, refreshToken string) *Credentials {
	return &Credentials{
		accessToken:  accessToken,
		refreshToken: refreshToken,
		now:          time.Now,
	}
}

func (c *Credentials) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.accessToken
}

func (c *Credentials) RefreshToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.refreshToken
}

// Set stores a new token pair. An empty refresh token keeps the previous one.
func (c *Credentials) Set(accessToken, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accessToken = accessToken
	if refreshToken != "" {
		c.refreshToken = refreshToken
	}
}

// Clear drops both tokens; the operator has to sign in again.
func (c *Credentials) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accessToken = ""
	c.refreshToken = ""
}

// Expired reports whether the access token is a JWT whose exp is in the past.
// The signature is not checked here; the API verifies it. Opaque tokens are
// never considered expired.
func (c *Credentials) Expired() bool {
	token := c.AccessToken()
	if token == "" {
		return false
	}

	claims := &jwt.RegisteredClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}

	return !claims.ExpiresAt.After(c.now())
}
