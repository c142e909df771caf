package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"parkpass/internal/models"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// NewToken issues a signed HS256 session token for a staff member on this
// terminal.
func NewToken(secret string, s models.Session) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  s.StaffId,
		"name": s.StaffName,
		"role": string(s.Role),
		"dev":  s.DeviceId,
		"exp":  s.ExpiresAt.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// ParseToken verifies the signature and expiry and rebuilds the session.
func ParseToken(secret, tokenString string) (*models.Session, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	s := &models.Session{
		StaffId:   stringClaim(claims, "sub"),
		StaffName: stringClaim(claims, "name"),
		Role:      models.DeviceRole(stringClaim(claims, "role")),
		DeviceId:  stringClaim(claims, "dev"),
	}
	if s.StaffId == "" || s.Role == "" {
		return nil, ErrInvalidToken
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}

// HashPin hashes a staff PIN for storage.
func HashPin(pin string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPin reports whether the PIN matches the stored hash.
func VerifyPin(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
