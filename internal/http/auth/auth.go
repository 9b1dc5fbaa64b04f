// Package auth verifies bearer tokens issued by the authentication service and exposes the owner they name.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ownerKey struct{}

// Middleware rejects requests without a valid HS256 bearer token. The token subject must be the owner UUID.
func Middleware(secret, issuer string) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || raw == "" {
				http.Error(w, "authorization header must be Bearer {token}", http.StatusUnauthorized)
				return
			}

			claims := &jwt.RegisteredClaims{}

			_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
				return []byte(secret), nil
			})
			if err != nil {
				slog.DebugContext(r.Context(), "rejected token", "error", err)

				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token has expired"
				}

				http.Error(w, msg, http.StatusUnauthorized)

				return
			}

			owner, err := uuid.Parse(claims.Subject)
			if err != nil {
				http.Error(w, "token subject is not a valid owner id", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func WithOwner(ctx context.Context, owner uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// Owner returns the authenticated owner. Handlers mounted behind Middleware can rely on ok being true.
func Owner(ctx context.Context) (uuid.UUID, bool) {
	owner, ok := ctx.Value(ownerKey{}).(uuid.UUID)
	return owner, ok
}

// MustOwner writes a 401 and returns false when the request carries no owner.
func MustOwner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	owner, ok := Owner(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
	}

	return owner, ok
}

// Issue signs a token for owner. Used by tooling and tests; production tokens come from the auth service.
func Issue(secret, issuer string, owner uuid.UUID, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = owner.String()
	if issuer != "" {
		claims.Issuer = issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
