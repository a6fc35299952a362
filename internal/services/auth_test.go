package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/secondbrain-backend/internal/data/repos/testutil"
	"github.com/yungbote/secondbrain-backend/internal/pkg/ctxutil"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
)

func newSigningKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func sessionToken(t *testing.T, key *rsa.PrivateKey, sub, azp string, exp time.Time) string {
	t.Helper()
	claims := ClerkClaims{
		SessionID:       "sess_1",
		AuthorizedParty: azp,
		Email:           "New@Example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestAuthenticateCreatesUserOnFirstSight(t *testing.T) {
	e := newEnv(t)
	key, pubPEM := newSigningKey(t)
	// single-line env form
	svc, err := NewAuthService(testutil.Logger(t), e.users, AuthConfig{
		PublicKeyPEM:      strings.ReplaceAll(pubPEM, "\n", `\n`),
		AuthorizedParties: []string{"https://app.example.com/"},
	})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	tok := sessionToken(t, key, "user_abc", "https://app.example.com", time.Now().Add(time.Hour))
	ctx, u, err := svc.Authenticate(context.Background(), tok)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.ClerkUserID != "user_abc" || u.Email != "new@example.com" {
		t.Fatalf("user = %+v", u)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID != u.ID || rd.SessionID != "sess_1" {
		t.Fatalf("request data = %+v", rd)
	}

	_, again, err := svc.Authenticate(context.Background(), tok)
	if err != nil || again.ID != u.ID {
		t.Fatalf("second Authenticate = %+v, %v", again, err)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	e := newEnv(t)
	key, pubPEM := newSigningKey(t)
	otherKey, _ := newSigningKey(t)
	svc, err := NewAuthService(testutil.Logger(t), e.users, AuthConfig{
		PublicKeyPEM:      pubPEM,
		AuthorizedParties: []string{"https://app.example.com"},
	})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	hs, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user_abc",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not-a-jwt",
		"expired":   sessionToken(t, key, "user_abc", "", time.Now().Add(-time.Hour)),
		"wrong key": sessionToken(t, otherKey, "user_abc", "", time.Now().Add(time.Hour)),
		"bad azp":   sessionToken(t, key, "user_abc", "https://evil.example.com", time.Now().Add(time.Hour)),
		"no sub":    sessionToken(t, key, "", "", time.Now().Add(time.Hour)),
		"hs256":     hs,
	}
	for name, tok := range cases {
		if _, _, err := svc.Authenticate(context.Background(), tok); !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("%s: err = %v, want ErrUnauthorized", name, err)
		}
	}
}

func TestNewAuthServiceNeedsKey(t *testing.T) {
	if _, err := NewAuthService(testutil.Logger(t), nil, AuthConfig{}); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := NewAuthService(testutil.Logger(t), nil, AuthConfig{PublicKeyPEM: "junk"}); err == nil {
		t.Fatal("expected error for bad key")
	}
}
