package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Roles carried in the token.
const (
	RoleReviewer   = "reviewer"
	RoleVerifier   = "verifier"
	RoleCaseworker = "caseworker"
)

// TokenClaims identifies the actor behind a request. The subject is recorded
// as reviewer, verifier or note author.
type TokenClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims grant role.
func (c TokenClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type claimsKey struct{}

// SignJWT issues an HS256 token for subject valid for ttl.
func SignJWT(secret, subject string, roles []string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	claims := TokenClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyJWT parses an HS256 token and validates its registered claims.
func VerifyJWT(secret, token string) (*TokenClaims, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is not configured")
	}
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, error) {
	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) == 0 {
		return "", errors.New("missing authorization")
	}
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	return fields[1], nil
}

// AuthJWT rejects requests without a valid bearer token.
func AuthJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			claims, err := VerifyJWT(secret, token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole must run after AuthJWT.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil || !claims.HasRole(role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) *TokenClaims {
	if v, ok := ctx.Value(claimsKey{}).(*TokenClaims); ok {
		return v
	}
	return nil
}

func ContextWithClaims(ctx context.Context, claims *TokenClaims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ActorFromContext returns the authenticated subject, empty when anonymous.
func ActorFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}
