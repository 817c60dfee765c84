package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	user := &User{
		ID:   "usr-001",
		Role: RoleOwner,
	}
	secret := "test-secret-key-for-jwt-signing"

	token, err := GenerateAccessToken(user, secret, "stablelink", 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	if token == "" {
		t.Fatal("GenerateAccessToken() returned empty token")
	}

	claims, err := ParseToken(token, secret, "stablelink")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	if claims.Subject != "usr-001" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "usr-001")
	}

	if claims.Role != RoleOwner {
		t.Errorf("Role = %q, want %q", claims.Role, RoleOwner)
	}

	if claims.SessionID == "" {
		t.Error("SessionID should not be empty")
	}

	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	user := &User{ID: "usr-001", Role: RoleOwner}

	token, err := GenerateAccessToken(user, "correct-secret", "", 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	_, err = ParseToken(token, "wrong-secret", "")
	if err == nil {
		t.Error("ParseToken() should fail with wrong secret")
	}
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_WrongIssuer(t *testing.T) {
	user := &User{ID: "usr-001", Role: RoleOwner}

	token, err := GenerateAccessToken(user, "secret", "other-system", 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	if _, err := ParseToken(token, "secret", "stablelink"); err == nil {
		t.Error("ParseToken() should fail when issuer does not match")
	}

	// Empty expected issuer skips the check
	if _, err := ParseToken(token, "secret", ""); err != nil {
		t.Errorf("ParseToken() with no expected issuer error = %v", err)
	}
}

func TestParseToken_UnknownRole(t *testing.T) {
	user := &User{ID: "usr-001", Role: Role("janitor")}

	token, err := GenerateAccessToken(user, "secret", "", 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	_, err = ParseToken(token, "secret", "")
	if err == nil {
		t.Error("ParseToken() should reject tokens with unknown roles")
	}
}

func TestParseToken_Malformed(t *testing.T) {
	// Empty string
	if _, err := ParseToken("", "secret", ""); err == nil {
		t.Error("ParseToken() should fail with empty token")
	}

	// Garbage
	if _, err := ParseToken("not-a-valid-jwt", "secret", ""); err == nil {
		t.Error("ParseToken() should fail with invalid token string")
	}

	// Wrong number of segments
	if _, err := ParseToken("abc.def", "secret", ""); err == nil {
		t.Error("ParseToken() should fail with malformed JWT")
	}
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	user := &User{ID: "usr-001", Role: RoleAdmin}

	// TTL of 0 should default to 15 minutes
	token, err := GenerateAccessToken(user, "secret", "", 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, "secret", "")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	expectedExpiry := time.Now().Add(15 * time.Minute)
	diff := claims.ExpiresAt.Time.Sub(expectedExpiry)
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("default TTL should be ~15 minutes, got expiry diff of %v", diff)
	}
}
