package auth

import (
	"testing"
	"time"
)

func testUser() User {
	return User{
		ID:    "3f1c9d2e-0000-0000-0000-000000000001",
		Email: "ana@example.com",
		Role:  RoleUser,
	}
}

func TestSignAndVerify(t *testing.T) {
	signer := NewTokenSigner([]byte("test-secret"))

	token, err := signer.Sign(testUser())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	sess, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sess.UserID != testUser().ID {
		t.Errorf("expected user id %q, got %q", testUser().ID, sess.UserID)
	}
	if sess.Email != "ana@example.com" {
		t.Errorf("expected email ana@example.com, got %q", sess.Email)
	}
	if sess.Role != RoleUser {
		t.Errorf("expected role %q, got %q", RoleUser, sess.Role)
	}
	if !sess.Active() {
		t.Error("expected freshly issued session to be active")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := NewTokenSigner([]byte("secret-a"))
	other := NewTokenSigner([]byte("secret-b"))

	token, err := signer.Sign(testUser())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := other.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	signer := NewTokenSigner([]byte("test-secret"))
	signer.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := signer.Sign(testUser())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Verify with the real clock: the token expired 45 minutes ago.
	signer.now = time.Now
	if _, err := signer.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	signer := NewTokenSigner([]byte("test-secret"))

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := signer.Verify(tok); err != ErrInvalidToken {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestPasswordHashRoundtrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("hash must not equal plaintext")
	}

	if err := CheckPassword(hash, "correct horse battery"); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := CheckPassword(hash, "wrong password"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestHashPasswordRejectsShort(t *testing.T) {
	if _, err := HashPassword("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestSessionActive(t *testing.T) {
	var nilSess *Session
	if nilSess.Active() {
		t.Error("nil session must not be active")
	}

	expired := &Session{UserID: "u", ExpiresAt: time.Now().Add(-time.Minute)}
	if expired.Active() {
		t.Error("expired session must not be active")
	}

	admin := &Session{UserID: "u", Role: RoleAdmin, ExpiresAt: time.Now().Add(time.Minute)}
	if !admin.Active() || !admin.IsAdmin() {
		t.Error("expected active admin session")
	}
}
