package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims claims estándar más los campos que emite el backend del POS.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Generate firma un token HS256. Lo usan los backends de prueba; el dashboard
// nunca firma tokens propios.
func Generate(secret, userID, role, issuer string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt: secret vacío")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
		Role:   role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ExpiresAt lee el claim exp SIN verificar la firma: el dashboard no conoce el
// secreto del backend y solo lo usa para programar el refresh. Nunca debe
// usarse para decisiones de autorización.
func ExpiresAt(tokenString string) (time.Time, error) {
	var claims Claims
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("jwt: token ilegible: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("jwt: token sin exp")
	}
	return claims.ExpiresAt.Time, nil
}

// ExpiresWithin indica si el token vence antes de now+leeway. Un token opaco
// o sin exp se considera vigente: el backend decidirá con un 401.
func ExpiresWithin(tokenString string, leeway time.Duration, now time.Time) bool {
	exp, err := ExpiresAt(tokenString)
	if err != nil {
		return false
	}
	return !exp.After(now.Add(leeway))
}
