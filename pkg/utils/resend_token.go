package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ResendTokenTTL bounds how long after registration a verification email can
// be re-requested without re-entering credentials.
const ResendTokenTTL = 15 * time.Minute

type ResendClaims struct {
	UserID    uuid.UUID `json:"userID"`
	Email     string    `json:"email"`
	TokenType string    `json:"tokenType"`
	jwt.RegisteredClaims
}

func GenerateResendToken(userID uuid.UUID, email string) (string, error) {
	expiresAt := time.Now().Add(ResendTokenTTL)
	claims := ResendClaims{
		UserID:    userID,
		Email:     email,
		TokenType: "resend_email",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateResendToken(tokenString string) (*ResendClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ResendClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ResendClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid resend token")
	}

	if claims.TokenType != "resend_email" {
		return nil, fmt.Errorf("invalid token type")
	}

	return claims, nil
}
