package api

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", nil},
		{"surrounding whitespace", "  Bearer abc  ", "abc", nil},
		{"empty", "", "", errMissingAuthorization},
		{"blank", "   ", "", errMissingAuthorization},
		{"no scheme", "abc.def.ghi", "", errBadAuthorization},
		{"wrong scheme", "Basic abc", "", errBadAuthorization},
		{"scheme only", "Bearer ", "", errBadAuthorization},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := bearerToken(tc.header)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Fatalf("expected token %q, got %q", tc.want, got)
			}
		})
	}
}

func signTestToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestModeAuth(t *testing.T, secret string) *Auth {
	t.Helper()
	t.Setenv(envAuthTestMode, "1")
	t.Setenv(envTestJWTSecret, secret)
	return NewAuth(nil, "kanban-api", "https://issuer.test/")
}

func TestAuthTestModeAcceptsHS256(t *testing.T) {
	a := newTestModeAuth(t, "sekret")
	token := signTestToken(t, "sekret", jwt.MapClaims{
		"sub": "64b5f0c2a1d2e3f4a5b6c7d8",
		"exp": time.Now().Add(time.Hour).Unix(),
		"aud": "kanban-api",
		"iss": "https://issuer.test/",
	})

	sub, err := a.UserIDFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if sub != "64b5f0c2a1d2e3f4a5b6c7d8" {
		t.Fatalf("unexpected sub %q", sub)
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	a := newTestModeAuth(t, "sekret")
	token := signTestToken(t, "other-secret", jwt.MapClaims{
		"sub": "64b5f0c2a1d2e3f4a5b6c7d8",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("token signed with wrong secret must be rejected")
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	a := newTestModeAuth(t, "sekret")
	token := signTestToken(t, "sekret", jwt.MapClaims{
		"sub": "64b5f0c2a1d2e3f4a5b6c7d8",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestAuthRejectsMissingClaims(t *testing.T) {
	a := newTestModeAuth(t, "sekret")

	noExp := signTestToken(t, "sekret", jwt.MapClaims{"sub": "64b5f0c2a1d2e3f4a5b6c7d8"})
	if _, err := a.UserIDFromAuthHeader("Bearer " + noExp); err == nil {
		t.Fatal("token without exp must be rejected")
	}

	noSub := signTestToken(t, "sekret", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if _, err := a.UserIDFromAuthHeader("Bearer " + noSub); err == nil {
		t.Fatal("token without sub must be rejected")
	}
}

func TestAuthRejectsWrongAudience(t *testing.T) {
	a := newTestModeAuth(t, "sekret")
	token := signTestToken(t, "sekret", jwt.MapClaims{
		"sub": "64b5f0c2a1d2e3f4a5b6c7d8",
		"exp": time.Now().Add(time.Hour).Unix(),
		"aud": "somebody-else",
	})
	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("token with foreign audience must be rejected")
	}
}

func TestAuthProdModeRequiresJWKS(t *testing.T) {
	a := NewAuth(nil, "", "")
	if _, err := a.UserIDFromAuthHeader("Bearer whatever"); err == nil {
		t.Fatal("production mode without jwks must fail closed")
	}
}
