package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/utils"
)

// Claims defines the structure of the JWT claims. Accounts live in the
// booking platform; this service only trusts the signed id and role.
type Claims struct {
	UserID string                 `json:"user_id"`
	Role   models.ParticipantRole `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token carries the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// GenerateJWT creates a new JWT for a given user.
func GenerateJWT(userID utils.SixID, role models.ParticipantRole, secretKey string, ttl time.Duration) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("invalid role %q", role)
	}
	now := time.Now()
	claims := &Claims{
		UserID: userID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT verifies a JWT string and returns the claims if valid.
func ValidateJWT(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid JWT")
	}
	if _, err := utils.ParseSixID(claims.UserID); err != nil {
		return nil, fmt.Errorf("invalid user id in JWT: %w", err)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("invalid role in JWT: %q", claims.Role)
	}

	return claims, nil
}
