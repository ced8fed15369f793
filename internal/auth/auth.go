// Package auth verifies the bearer tokens scorers present on the scoring socket.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken     = errors.New("missing token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrForbidden        = errors.New("token does not grant scoring")
)

const RoleScorer = "scorer"

type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	// MatchID optionally pins the token to one match.
	MatchID string `json:"match_id,omitempty"`
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Issue signs a scorer token. The server never hands these out itself; it exists for
// operators and tests.
func (v *Verifier) Issue(userID, matchID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:  userID,
		Role:    RoleScorer,
		MatchID: matchID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrInvalidSignature):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authorize checks that the request carries a scorer token valid for matchID.
func (v *Verifier) Authorize(r *http.Request, matchID string) (*Claims, error) {
	raw := TokenFromRequest(r)
	if raw == "" {
		return nil, ErrMissingToken
	}
	claims, err := v.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleScorer {
		return nil, ErrForbidden
	}
	if claims.MatchID != "" && claims.MatchID != matchID {
		return nil, fmt.Errorf("%w: token is for another match", ErrForbidden)
	}
	return claims, nil
}

// TokenFromRequest reads a bearer token from the Authorization header, falling back to
// the token query parameter since browsers cannot set headers on websocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return strings.TrimSpace(h)
	}
	return r.URL.Query().Get("token")
}
