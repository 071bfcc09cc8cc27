package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Issue(42, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Subject != "alice" {
		t.Fatalf("subject = %q, want alice", claims.Subject)
	}
}

func TestTokenExpired(t *testing.T) {
	m, err := NewTokenManager("test-secret", time.Nanosecond)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Issue(1, "bob")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := m.Parse(token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestTokenWrongSecret(t *testing.T) {
	m1, _ := NewTokenManager("secret-one", time.Hour)
	m2, _ := NewTokenManager("secret-two", time.Hour)

	token, err := m1.Issue(1, "carol")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m2.Parse(token); err == nil {
		t.Fatalf("expected parse with wrong secret to fail")
	}
}

func TestTokenGarbage(t *testing.T) {
	m, _ := NewTokenManager("test-secret", time.Hour)
	if _, err := m.Parse("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to fail")
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := NewTokenManager("  ", time.Hour); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
}
