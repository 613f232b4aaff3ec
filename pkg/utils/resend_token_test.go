package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestGenerateAndValidateResendToken(t *testing.T) {
	t.Run("round trips the user identity", func(t *testing.T) {
		configureJWTForTest(t, "resend-secret", 24)

		userID := uuid.New()
		token, err := GenerateResendToken(userID, "user@example.com")
		if err != nil {
			t.Fatalf("expected token generation to succeed, got error: %v", err)
		}

		claims, err := ValidateResendToken(token)
		if err != nil {
			t.Fatalf("expected token validation to succeed, got error: %v", err)
		}
		if claims.UserID != userID {
			t.Fatalf("expected userID %s, got %s", userID, claims.UserID)
		}
		if claims.Email != "user@example.com" {
			t.Fatalf("expected email to round trip, got %q", claims.Email)
		}
		if claims.ExpiresAt == nil {
			t.Fatal("expected an expiration")
		}
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > ResendTokenTTL {
			t.Fatalf("expected expiration within %v, got %v remaining", ResendTokenTTL, remaining)
		}
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		configureJWTForTest(t, "resend-secret", 24)

		claims := ResendClaims{
			UserID:    uuid.New(),
			Email:     "late@example.com",
			TokenType: "resend_email",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
		if err != nil {
			t.Fatalf("failed signing expired token for test: %v", err)
		}

		if _, err := ValidateResendToken(token); err == nil {
			t.Fatal("expected expired token validation to fail")
		}
	})

	t.Run("rejects a session token passed as a resend token", func(t *testing.T) {
		configureJWTForTest(t, "resend-secret", 24)

		claims := ResendClaims{
			UserID:    uuid.New(),
			Email:     "wrong@example.com",
			TokenType: "session",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
		if err != nil {
			t.Fatalf("failed signing token for test: %v", err)
		}

		if _, err := ValidateResendToken(token); err == nil {
			t.Fatal("expected wrong token type to be rejected")
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		configureJWTForTest(t, "resend-secret", 24)

		if _, err := ValidateResendToken("not-a-jwt"); err == nil {
			t.Fatal("expected malformed token validation to fail")
		}
	})
}
