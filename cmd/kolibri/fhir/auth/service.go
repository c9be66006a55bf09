// Package auth exchanges a signed JWT client assertion for a bearer token
// (SMART Backend Services client_credentials flow) and caches the result
// until shortly before expiry.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// safetyBuffer refreshes the token this long before it actually
	// expires, so a token handed out is never stale by the time the
	// request carrying it reaches the server.
	safetyBuffer = 30 * time.Second

	// assertionLifetime bounds the client assertion itself, not the
	// access token it buys.
	assertionLifetime = 5 * time.Minute

	assertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// Config holds the token endpoint settings.
type Config struct {
	TokenURL   string
	ClientID   string
	Scope      string
	KeyID      string // published kid header
	JWKSetURL  string // published jku header
	PrivateKey *rsa.PrivateKey
}

// Token pairs an access token with its expiry. The pair is only ever
// replaced as a whole.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// AuthError is fatal: the caller decides whether to abort the run, the
// store never retries an exchange on its own.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TokenStore owns the single cached bearer token shared by all fetch
// workers. Refreshes are single-flight: the mutex is held across the
// exchange, so concurrent callers block until the in-flight refresh
// completes instead of issuing duplicate assertions (each jti is
// single-use).
type TokenStore struct {
	config Config
	client *http.Client
	log    zerolog.Logger

	mu    sync.Mutex
	token *Token

	now func() time.Time
}

func NewTokenStore(config Config, log zerolog.Logger) *TokenStore {
	return &TokenStore{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.With().Str("component", "token_store").Logger(),
		now:    time.Now,
	}
}

// GetToken returns a bearer token that is valid for at least the safety
// buffer, refreshing first when needed. Never returns an expired token.
func (s *TokenStore) GetToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && s.now().Add(safetyBuffer).Before(s.token.ExpiresAt) {
		return s.token.AccessToken, nil
	}

	token, err := s.refresh(ctx)
	if err != nil {
		return "", err
	}
	s.token = token

	s.log.Debug().
		Time("expiresAt", token.ExpiresAt).
		Msg("Refreshed access token")
	return token.AccessToken, nil
}

// refresh performs the JWT-assertion client_credentials exchange. Called
// with the store mutex held.
func (s *TokenStore) refresh(ctx context.Context) (*Token, error) {
	assertion, err := s.buildAssertion()
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("failed to sign client assertion: %w", err)}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_assertion_type", assertionType)
	form.Set("client_assertion", assertion)
	if s.config.Scope != "" {
		form.Set("scope", s.config.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("token request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("failed to read token response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &AuthError{Err: fmt.Errorf("failed to parse token response: %w", err)}
	}
	if payload.AccessToken == "" {
		return nil, &AuthError{Err: fmt.Errorf("token response has no access_token")}
	}

	return &Token{
		AccessToken: payload.AccessToken,
		ExpiresAt:   s.now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}

// buildAssertion signs the RS384 client assertion: iss and sub are the
// client id, aud the token endpoint, jti a fresh single-use id.
func (s *TokenStore) buildAssertion() (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss": s.config.ClientID,
		"sub": s.config.ClientID,
		"aud": s.config.TokenURL,
		"jti": strings.ReplaceAll(uuid.NewString(), "-", ""),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(assertionLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS384, claims)
	if s.config.KeyID != "" {
		token.Header["kid"] = s.config.KeyID
	}
	if s.config.JWKSetURL != "" {
		token.Header["jku"] = s.config.JWKSetURL
	}
	return token.SignedString(s.config.PrivateKey)
}
