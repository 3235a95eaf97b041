package auth

import (
	"testing"

	"github.com/google/uuid"
)

func TestGenerateValidateRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	userID := uuid.New()

	token, err := svc.Generate(userID, "coach@club.io", "coach")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %s, want %s", claims.UserID, userID)
	}
	if claims.Role != "coach" {
		t.Errorf("Role = %q, want coach", claims.Role)
	}
	if claims.Issuer != "coachlens" {
		t.Errorf("Issuer = %q, want coachlens", claims.Issuer)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", 1).Generate(uuid.New(), "x@club.io", "athlete")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := NewJWTService("secret-b", 1).Validate(token); err == nil {
		t.Fatal("token signed with another secret validated")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if _, err := NewJWTService("secret", 1).Validate("not-a-token"); err == nil {
		t.Fatal("garbage token validated")
	}
}
