// Package identity resolves the learner identity recordings are filed under.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"glossvoice/internal/domain"
)

// ErrNoIdentity means no learner is signed in. Callers fall back to demo mode.
var ErrNoIdentity = errors.New("no learner identity available")

type tokenClaims struct {
	Domain string      `json:"domain"`
	Claims innerClaims `json:"claims"`
	jwt.RegisteredClaims
}

type innerClaims struct {
	ClassHash      string `json:"class_hash"`
	PlatformUserID any    `json:"platform_user_id"`
}

// JWTResolver reads the learner identity out of a session token. With a secret
// the HMAC signature is verified; without one the claims are trusted as-is,
// which matches tokens handed over by the embedding page.
type JWTResolver struct {
	token  string
	secret []byte
}

func NewJWTResolver(token string, secret string) *JWTResolver {
	r := &JWTResolver{token: strings.TrimSpace(token)}
	if secret != "" {
		r.secret = []byte(secret)
	}
	return r
}

func (r *JWTResolver) Resolve(ctx context.Context) (domain.StudentIdentity, error) {
	if err := ctx.Err(); err != nil {
		return domain.StudentIdentity{}, err
	}
	if r.token == "" {
		return domain.StudentIdentity{}, ErrNoIdentity
	}

	claims := &tokenClaims{}
	if r.secret != nil {
		_, err := jwt.ParseWithClaims(r.token, claims, func(token *jwt.Token) (any, error) {
			return r.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return domain.StudentIdentity{}, fmt.Errorf("invalid identity token: %w", err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(r.token, claims); err != nil {
			return domain.StudentIdentity{}, fmt.Errorf("invalid identity token: %w", err)
		}
	}

	identity := domain.StudentIdentity{
		Source:    sourceFromDomain(claims.Domain),
		ContextID: strings.TrimSpace(claims.Claims.ClassHash),
		UserID:    userIDString(claims.Claims.PlatformUserID),
		Token:     r.token,
	}
	if identity.Source == "" || identity.ContextID == "" || identity.UserID == "" {
		return domain.StudentIdentity{}, errors.New("identity token is missing domain, class or user claims")
	}
	return identity, nil
}

// sourceFromDomain reduces the domain claim to a hostname. Bare hostnames are
// accepted too.
func sourceFromDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// Numeric ids arrive as JSON numbers.
func userIDString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(id))
	}
}
