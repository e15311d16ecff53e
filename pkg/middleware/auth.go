package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sedirimou/Gameva-sub003/pkg/httputil"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	roleKey   contextKeyType = "role"
)

// RoleAdmin is the role granted to holders of the admin API token.
const RoleAdmin = "admin"

// ErrInvalidToken is returned by validators that reject a token.
var ErrInvalidToken = errors.New("invalid token")

// Claims describes the caller behind a bearer token.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// StaticTokenValidator accepts exactly one shared secret and grants it the
// admin role. An empty secret rejects every token.
func StaticTokenValidator(secret string) TokenValidator {
	return func(token string) (*Claims, error) {
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return nil, ErrInvalidToken
		}
		return &Claims{UserID: "admin-token", Role: RoleAdmin}, nil
	}
}

// jwtClaims mirrors the access tokens issued by the user service.
type jwtClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTValidator accepts HMAC-signed access tokens. Expiry is enforced; the
// role claim is passed through for RequireRole to check. An empty secret
// rejects every token.
func JWTValidator(secret string) TokenValidator {
	key := []byte(secret)
	return func(token string) (*Claims, error) {
		if len(key) == 0 {
			return nil, ErrInvalidToken
		}
		var claims jwtClaims
		parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		}, jwt.WithExpirationRequired())
		if err != nil || !parsed.Valid {
			return nil, ErrInvalidToken
		}
		userID := claims.UserID
		if userID == "" {
			userID = claims.Subject
		}
		return &Claims{UserID: userID, Role: claims.Role}, nil
	}
}

// AnyValidator tries each validator in order and returns the first success.
// Nil validators are skipped.
func AnyValidator(validators ...TokenValidator) TokenValidator {
	return func(token string) (*Claims, error) {
		for _, v := range validators {
			if v == nil {
				continue
			}
			if claims, err := v(token); err == nil {
				return claims, nil
			}
		}
		return nil, ErrInvalidToken
	}
}

// Auth validates the bearer token and stores the caller's claims in the context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header format")
				return
			}

			claims, err := validate(token)
			if err != nil {
				httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not in roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				httputil.WriteErrorCode(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// RoleFromContext returns the authenticated role, if any.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}
