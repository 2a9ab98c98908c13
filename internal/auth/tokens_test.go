package auth

import (
	"errors"
	"testing"
	"time"
)

func testUser() *User {
	return &User{
		ID:    "usr-test1234",
		Email: "ada@students.example.edu",
		Role:  RoleStudent,
	}
}

func TestTokenCodec_AccessRoundTrip(t *testing.T) {
	codec := testCodec(t, 15*time.Minute, 7*24*time.Hour)

	token, err := codec.EncodeAccess(testUser())
	if err != nil {
		t.Fatalf("EncodeAccess() error = %v", err)
	}

	claims, err := codec.DecodeAccess(token)
	if err != nil {
		t.Fatalf("DecodeAccess() error = %v", err)
	}

	if claims.Subject != "usr-test1234" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "usr-test1234")
	}
	if claims.Email != "ada@students.example.edu" {
		t.Errorf("Email = %q, want %q", claims.Email, "ada@students.example.edu")
	}
	if claims.Role != RoleStudent {
		t.Errorf("Role = %q, want %q", claims.Role, RoleStudent)
	}
}

func TestTokenCodec_RefreshRoundTrip(t *testing.T) {
	codec := testCodec(t, 15*time.Minute, 7*24*time.Hour)

	token, family, expiresAt, err := codec.EncodeRefresh("usr-test1234", "")
	if err != nil {
		t.Fatalf("EncodeRefresh() error = %v", err)
	}

	if family == "" {
		t.Fatal("empty family not replaced with a new one")
	}
	if time.Until(expiresAt) < 6*24*time.Hour {
		t.Errorf("expiresAt %v too soon for a 7 day TTL", expiresAt)
	}

	claims, err := codec.DecodeRefresh(token)
	if err != nil {
		t.Fatalf("DecodeRefresh() error = %v", err)
	}
	if claims.Family != family {
		t.Errorf("Family = %q, want %q", claims.Family, family)
	}
	if claims.Subject != "usr-test1234" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "usr-test1234")
	}

	// Reusing the family keeps it but produces a distinct token value.
	token2, family2, _, err := codec.EncodeRefresh("usr-test1234", family)
	if err != nil {
		t.Fatalf("EncodeRefresh() error = %v", err)
	}
	if family2 != family {
		t.Errorf("family changed on rotation: %q != %q", family2, family)
	}
	if token2 == token {
		t.Error("rotation produced an identical token value")
	}
}

func TestTokenCodec_ClassConfusion(t *testing.T) {
	codec := testCodec(t, 15*time.Minute, 7*24*time.Hour)

	access, err := codec.EncodeAccess(testUser())
	if err != nil {
		t.Fatalf("EncodeAccess() error = %v", err)
	}
	refresh, _, _, err := codec.EncodeRefresh("usr-test1234", "")
	if err != nil {
		t.Fatalf("EncodeRefresh() error = %v", err)
	}

	// Tokens are signed with independent secrets, so presenting one
	// class to the other decoder fails at the signature check.
	if _, err := codec.DecodeRefresh(access); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("DecodeRefresh(access token) error = %v, want ErrTokenInvalid", err)
	}
	if _, err := codec.DecodeAccess(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("DecodeAccess(refresh token) error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenCodec_Expiry(t *testing.T) {
	codec := testCodec(t, -time.Minute, -time.Minute)

	token, err := codec.EncodeAccess(testUser())
	if err != nil {
		t.Fatalf("EncodeAccess() error = %v", err)
	}

	if _, err := codec.DecodeAccess(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("DecodeAccess(expired) error = %v, want ErrTokenExpired", err)
	}
}

func TestTokenCodec_TamperedToken(t *testing.T) {
	codec := testCodec(t, 15*time.Minute, 7*24*time.Hour)

	token, err := codec.EncodeAccess(testUser())
	if err != nil {
		t.Fatalf("EncodeAccess() error = %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := codec.DecodeAccess(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("DecodeAccess(tampered) error = %v, want ErrTokenInvalid", err)
	}

	if _, err := codec.DecodeAccess("not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("DecodeAccess(garbage) error = %v, want ErrTokenInvalid", err)
	}
}

func TestNewTokenCodec_Validation(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")

	if _, err := NewTokenCodec(nil, secret, 0, 0); err == nil {
		t.Error("NewTokenCodec with empty access secret should fail")
	}
	if _, err := NewTokenCodec(secret, secret, 0, 0); err == nil {
		t.Error("NewTokenCodec with identical secrets should fail")
	}

	codec, err := NewTokenCodec(secret, []byte("fedcba9876543210fedcba9876543210"), 0, 0)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	if codec.AccessTTL() != DefaultAccessTTL {
		t.Errorf("AccessTTL = %v, want default %v", codec.AccessTTL(), DefaultAccessTTL)
	}
	if codec.RefreshTTL() != DefaultRefreshTTL {
		t.Errorf("RefreshTTL = %v, want default %v", codec.RefreshTTL(), DefaultRefreshTTL)
	}
}
