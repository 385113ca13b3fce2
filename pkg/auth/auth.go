// Package auth authenticates coordinator API callers with JWT bearer
// tokens. A token binds the caller to a signer address; handlers use that
// binding to attribute created records. Approval validity itself never
// depends on the token: approvals carry their own ed25519 signatures.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shieldwallet/shieldwallet/pkg/api"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// Claims are the JWT claims the coordinator expects.
type Claims struct {
	jwt.RegisteredClaims
	// SignerAddress is the caller's wallet identity.
	SignerAddress string `json:"signer_address"`
}

// Validator validates HS256 tokens against a shared secret.
type Validator struct {
	secret []byte
}

// NewValidator creates a validator. An empty secret disables authentication
// (every request passes without a principal), for local development only.
func NewValidator(secret string) *Validator {
	if secret == "" {
		return nil
	}
	return &Validator{secret: []byte(secret)}
}

// Validate parses and validates a token string.
func (v *Validator) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Issue mints a token for a signer. Used by tests and the operator CLI.
func (v *Validator) Issue(signer wallet.Address) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: string(signer)},
		SignerAddress:    string(signer),
	})
	return token.SignedString(v.secret)
}

// publicPaths need no authentication.
var publicPaths = []string{
	"/health",
	"/readiness",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	// Read projections stay open; only writes require a token.
	return false
}

// Middleware returns JWT auth middleware. A nil validator passes every
// request through unauthenticated.
func Middleware(validator *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil || isPublicPath(r.URL.Path) || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteUnauthorized(w, "Missing Authorization header")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				api.WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}
			claims, err := validator.Validate(parts[1])
			if err != nil {
				api.WriteUnauthorized(w, "Invalid or expired token")
				return
			}
			if claims.SignerAddress == "" {
				api.WriteUnauthorized(w, "Token signer binding is required")
				return
			}
			ctx := api.WithPrincipal(r.Context(), &api.Principal{
				Signer: wallet.NormalizeAddress(claims.SignerAddress),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
