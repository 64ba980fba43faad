package authgate

import (
	"context"
	"testing"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestVerify_Valid(t *testing.T) {
	secret := "test-secret"
	v := NewJWTVerifier(secret)
	driverID := uuid.New()

	token := signToken(t, secret, jwt.MapClaims{
		"user_id": driverID.String(),
		"role":    string(types.RoleDriver),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	p, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.ID != driverID || p.Role != types.RoleDriver {
		t.Fatalf("got %+v", p)
	}
}

func TestVerify_RejectsExpired(t *testing.T) {
	secret := "test-secret"
	v := NewJWTVerifier(secret)

	token := signToken(t, secret, jwt.MapClaims{
		"user_id": uuid.New().String(),
		"role":    string(types.RolePassenger),
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), token)
	if types.KindOf(err) != types.KindUnauthorized {
		t.Fatalf("got %v, want unauthorized", err)
	}
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	v := NewJWTVerifier("correct-secret")
	token := signToken(t, "wrong-secret", jwt.MapClaims{
		"user_id": uuid.New().String(),
		"role":    string(types.RoleDriver),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	if _, err := v.Verify(context.Background(), token); types.KindOf(err) != types.KindUnauthorized {
		t.Fatalf("got %v, want unauthorized", err)
	}
}

func TestVerify_RejectsMissingRole(t *testing.T) {
	secret := "test-secret"
	v := NewJWTVerifier(secret)
	token := signToken(t, secret, jwt.MapClaims{
		"user_id": uuid.New().String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	if _, err := v.Verify(context.Background(), token); types.KindOf(err) != types.KindUnauthorized {
		t.Fatalf("got %v, want unauthorized", err)
	}
}
