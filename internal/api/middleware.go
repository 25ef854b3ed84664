/**
 * @description
 * This file contains custom middleware for the HTTP router. The auth
 * middleware validates bearer access tokens and places the authenticated
 * customer identity on the request context for handlers to read.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - internal/app: Token parsing.
 */

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tsb/banking-service/internal/app"
)

// authContextKey is a custom type for context keys to avoid collisions.
type authContextKey string

const (
	customerIDKey authContextKey = "customerID"
	usernameKey   authContextKey = "username"
)

// AuthMiddleware creates a middleware that validates bearer access tokens.
func AuthMiddleware(tokens *app.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.ParseAccessToken(tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), customerIDKey, claims.CustomerID)
			ctx = context.WithValue(ctx, usernameKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCustomerID retrieves the authenticated customer ID from the request context.
func GetCustomerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(customerIDKey).(uuid.UUID)
	return id, ok
}

// GetUsername retrieves the authenticated username from the request context.
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok
}
