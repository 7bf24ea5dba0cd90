package auth

import (
	"errors"
	"fmt"
	"time"

	"opsdash/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity snapshot carried inside a token. Role and
// active status are re-checked against the user store on every use; the
// claims alone never authorize anything.
type Claims struct {
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	Email    string     `json:"email"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies signed, time-bounded identity tokens. The
// signing secret and TTL are fixed at process start.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Issue encodes the identity into an HMAC-signed token.
func (t *Tokens) Issue(user model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded claims.
func (t *Tokens) Verify(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, model.ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", model.ErrTokenInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Claims{}, model.ErrTokenInvalid
	}
	return claims, nil
}

// Refresh re-verifies then re-issues with a fresh expiry and the same
// claims. Identity liveness is the caller's job (see Guard.Resolve).
func (t *Tokens) Refresh(tokenString string) (string, error) {
	claims, err := t.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return t.Issue(model.User{
		ID:       claims.Subject,
		Username: claims.Username,
		Role:     claims.Role,
		Email:    claims.Email,
	})
}
