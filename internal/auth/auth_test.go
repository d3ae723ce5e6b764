package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
)

var subject = principal.MustParse("0x00000000000000000000000000000000000000a1")

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("SAFEHAVEN_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	setSecret(t)

	token, err := GenerateToken(subject, []string{"ngo"}, 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	p, claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatal(err)
	}
	if p != subject {
		t.Fatalf("principal = %s", p)
	}
	if claims.Issuer != "safehaven" {
		t.Fatalf("issuer = %s", claims.Issuer)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "ngo" {
		t.Fatalf("roles = %v", claims.Roles)
	}
}

func TestGenerateRejectsZeroPrincipalAndBadTTL(t *testing.T) {
	setSecret(t)

	if _, err := GenerateToken(principal.Address{}, nil, time.Minute); err == nil {
		t.Fatal("zero principal accepted")
	}
	if _, err := GenerateToken(subject, nil, 0); err == nil {
		t.Fatal("zero ttl accepted")
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	setSecret(t)

	token, err := GenerateToken(subject, nil, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, _, err := ParseAndValidate(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v", err)
	}
	if _, _, err := ParseAndValidate(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: got %v", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	setSecret(t)
	token, err := GenerateToken(subject, nil, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("SAFEHAVEN_AUTH_SECRET", "rotated-secret")
	ResetSecretForTests()
	if _, _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("SAFEHAVEN_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken(subject, nil, time.Minute); err == nil {
		t.Fatal("token issued without a secret")
	}
}
