package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AccountIDFromContext returns the external account id placed by AuthMiddleware.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value("account_id").(string)
	return id, ok
}

// AuthMiddleware verifies the identity provider's session token and stores
// the external account id in the request context. Tokens are issued by the
// provider, never by this service.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "authorization header missing", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			tokenStr := parts[1]
			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
				}
				return []byte(jwtSecret), nil
			})

			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			accountID, ok := claims["clerkId"].(string)
			if !ok || accountID == "" {
				// Session tokens may carry the user id in the subject claim.
				accountID, _ = claims["sub"].(string)
			}
			if accountID == "" {
				slog.Error("token missing account id claim")
				http.Error(w, "invalid account id in token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), "account_id", accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
