package models

import (
	"strings"
	"testing"
)

func TestIssueAPIKey(t *testing.T) {
	user := &User{ID: 1, Name: "tester"}

	rawKey, err := user.IssueAPIKey()
	if err != nil {
		t.Fatalf("IssueAPIKey returned error: %v", err)
	}
	if !strings.HasPrefix(rawKey, "rcv_") {
		t.Fatalf("expected key prefix rcv_, got %q", rawKey)
	}
	if user.APIKeyHash != HashAPIKey(rawKey) {
		t.Fatalf("stored hash does not match raw key")
	}
	if user.APIKeyHash == rawKey {
		t.Fatalf("raw key must not be stored")
	}
	if !user.HasActiveAPIKey() {
		t.Fatalf("expected an active API key after issue")
	}
	if user.APIKeyCreatedAt == nil {
		t.Fatalf("expected created timestamp to be set")
	}
}

func TestIssueAPIKey_RotationChangesHash(t *testing.T) {
	user := &User{ID: 1, Name: "tester"}

	first, err := user.IssueAPIKey()
	if err != nil {
		t.Fatalf("IssueAPIKey returned error: %v", err)
	}
	firstHash := user.APIKeyHash

	second, err := user.IssueAPIKey()
	if err != nil {
		t.Fatalf("IssueAPIKey returned error: %v", err)
	}
	if first == second {
		t.Fatalf("expected a fresh key on rotation")
	}
	if firstHash == user.APIKeyHash {
		t.Fatalf("expected a fresh hash on rotation")
	}
}

func TestRevokeAPIKey(t *testing.T) {
	user := &User{ID: 1, Name: "tester"}
	if _, err := user.IssueAPIKey(); err != nil {
		t.Fatalf("IssueAPIKey returned error: %v", err)
	}

	user.RevokeAPIKey()

	if user.HasActiveAPIKey() {
		t.Fatalf("expected no active API key after revoke")
	}
	if user.APIKeyHash != "" || user.APIKeyPrefix != "" {
		t.Fatalf("expected key material to be cleared")
	}
	if user.APIKeyRevokedAt == nil {
		t.Fatalf("expected revoked timestamp to be set")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatalf("password must not be stored in plain text")
	}
	if !CheckPasswordHash("correct horse battery staple", hash) {
		t.Fatalf("expected matching password to verify")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Fatalf("expected non-matching password to fail")
	}
}
