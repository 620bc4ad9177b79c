package jwt

import (
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var testPayload = Payload{UserID: 7, Name: "jayan", Email: "jayan@jayan.com", Permission: []string{"super admin"}}

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken(testPayload, TypeAccess, "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseType(token, TypeAccess, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 7 || claims.Email != testPayload.Email || claims.Name != testPayload.Name {
		t.Fatalf("unexpected claims: %+v", claims.Payload)
	}
	if len(claims.Permission) != 1 || claims.Permission[0] != "super admin" {
		t.Fatalf("unexpected permission: %v", claims.Permission)
	}
	if claims.RegisteredClaims.ID == "" {
		t.Fatal("expected token id")
	}
}

func TestTokensAreUnique(t *testing.T) {
	a, _ := GenerateToken(testPayload, TypeRefresh, "secret", time.Minute)
	b, _ := GenerateToken(testPayload, TypeRefresh, "secret", time.Minute)
	if a == b {
		t.Fatal("expected distinct tokens for identical payloads")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _ := GenerateToken(testPayload, TypeAccess, "secret", time.Minute)
	if _, err := Parse(token, "other"); !errors.Is(err, jwtlib.ErrTokenSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, _ := GenerateToken(testPayload, TypeAccess, "secret", -time.Minute)
	if _, err := Parse(token, "secret"); !errors.Is(err, jwtlib.ErrTokenExpired) {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestParseTypeMismatch(t *testing.T) {
	token, _ := GenerateToken(testPayload, TypeRefresh, "secret", time.Minute)
	if _, err := ParseType(token, TypeAccess, "secret"); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected wrong type, got %v", err)
	}
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS512, Claims{Payload: testPayload, Type: TypeAccess})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Parse(signed, "secret"); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}
