// Package auth supplies Authorization headers for collector requests.
//
// Token issuance and refresh belong to the host application; this package
// only reads whatever token it is handed.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingToken is returned when no token is available.
var ErrMissingToken = errors.New("missing auth token")

// ErrInvalidToken wraps token decoding errors.
var ErrInvalidToken = errors.New("invalid auth token")

// TokenSource yields the current access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token, typically read from the environment.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// SwappableToken lets the host application replace the token at runtime.
type SwappableToken struct {
	mu    sync.RWMutex
	token string
}

// Set replaces the current token.
func (s *SwappableToken) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Token implements TokenSource.
func (s *SwappableToken) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StaticToken(s.token).Token(ctx)
}

// Authorizer formats Authorization header values.
type Authorizer struct {
	Scheme string
	Source TokenSource
}

// NewAuthorizer builds an Authorizer. An empty scheme defaults to Bearer.
func NewAuthorizer(scheme string, source TokenSource) Authorizer {
	if strings.TrimSpace(scheme) == "" {
		scheme = "Bearer"
	}
	return Authorizer{Scheme: scheme, Source: source}
}

// Header returns the Authorization header value.
func (a Authorizer) Header(ctx context.Context) (string, error) {
	if a.Source == nil {
		return "", ErrMissingToken
	}
	token, err := a.Source.Token(ctx)
	if err != nil {
		return "", err
	}
	return a.Scheme + " " + token, nil
}

// AgentFromToken extracts the agent identifier from a JWT without verifying it.
// It prefers a user_id claim and falls back to sub.
func AgentFromToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: no agent claim", ErrInvalidToken)
	}
	return subject, nil
}
