package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenLifetime keeps issued tokens valid long enough for a day of scans;
// clients re-exchange their API key when a token expires.
const tokenLifetime = 24 * time.Hour

type Claims struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
	jwt.RegisteredClaims
}

// GenerateToken signs a short-lived HS256 token for one user. Issued from
// the /auth/token exchange after the API key has been verified.
func GenerateToken(userID, apiKey, secret string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		APIKey: apiKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and verifies a bearer token, rejecting any signing
// method other than HS256.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
