package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const flowClaimsKey contextKey = "flowClaims"

const flowTokenIssuer = "reluxe-booking"

// IssueFlowToken signs a token binding the bearer to one flow.
func IssueFlowToken(secret, flowID string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("middleware: flow token secret not configured")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    flowTokenIssuer,
		Subject:   flowID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// FlowToken requires an HMAC-signed bearer token whose subject matches the
// {flowID} route parameter.
func FlowToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "flow auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithIssuer(flowTokenIssuer))
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if flowID := chi.URLParam(r, "flowID"); flowID != "" && flowID != claims.Subject {
				http.Error(w, "token does not match flow", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), flowClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FlowClaimsFromContext returns the flow token claims if present.
func FlowClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(flowClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}
