// Package token issues and verifies the stateless session credential.
// Validity is computed entirely at verification time; there is no
// server-side session table or denylist.
package token

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the session cookie written alongside the response body.
const CookieName = "jwt"

var (
	// ErrExpired indicates a structurally valid token past its expiry.
	ErrExpired = errors.New("token expired")

	// ErrInvalid indicates any structural or signature problem.
	ErrInvalid = errors.New("invalid token")
)

// Claims is the verified content of a session token.
type Claims struct {
	UserID   string
	IssuedAt time.Time
}

// Service signs and verifies session tokens bound to a user id.
type Service struct {
	secret    []byte
	ttl       time.Duration
	cookieTTL time.Duration
}

// NewService creates a token service.
// secret should be a cryptographically secure random string.
func NewService(secret string, ttl, cookieTTL time.Duration) *Service {
	return &Service{
		secret:    []byte(secret),
		ttl:       ttl,
		cookieTTL: cookieTTL,
	}
}

// Issue produces a signed token embedding the user id and issuance time.
func (s *Service) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		Issuer:    "tourbook",
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates signature and expiry and returns the token's claims.
// It fails closed: any structural, signature or expiry problem is an error.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || !tok.Valid || claims.Subject == "" || claims.IssuedAt == nil {
		return nil, ErrInvalid
	}

	return &Claims{
		UserID:   claims.Subject,
		IssuedAt: claims.IssuedAt.Time,
	}, nil
}

// SetCookie writes the session cookie. The cookie is http-only and is
// marked secure only when the request is confirmed over TLS, directly
// or via the forwarding proxy header.
func (s *Service) SetCookie(w http.ResponseWriter, r *http.Request, tokenString string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tokenString,
		Expires:  time.Now().Add(s.cookieTTL),
		HttpOnly: true,
		Secure:   RequestIsSecure(r),
		Path:     "/",
	})
}

// ClearCookie expires the session cookie. Used on logout; the token
// itself stays valid until it expires, since tokens are stateless.
func (s *Service) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Expires:  time.Now().Add(-10 * time.Second),
		HttpOnly: true,
		Path:     "/",
	})
}

// RequestIsSecure reports whether the request arrived over TLS, either
// directly or behind a trusted forwarding proxy.
func RequestIsSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
