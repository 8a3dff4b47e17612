// Package testutil builds bearer-token fixtures for tests.
package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningKey signs every fixture token.
var SigningKey = []byte("test-signing-key")

// Token returns an HS256 token expiring at exp with extra claims merged in.
func Token(t testing.TB, exp time.Time, extra map[string]any) string {
	t.Helper()
	claims := jwt.MapClaims{"exp": exp.Unix(), "iat": time.Now().Unix()}
	for k, v := range extra {
		claims[k] = v
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(SigningKey)
	if err != nil {
		t.Fatalf("sign fixture token: %v", err)
	}
	return s
}

// Fresh returns a token valid for an hour.
func Fresh(t testing.TB) string { return Token(t, time.Now().Add(time.Hour), nil) }

// Expired returns a token that expired d ago.
func Expired(t testing.TB, d time.Duration) string { return Token(t, time.Now().Add(-d), nil) }
