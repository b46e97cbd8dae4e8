// Package middleware provides HTTP middleware for authentication, request
// identification, and rate limiting.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"gridbase/internal/domain"
)

// Auth returns an HTTP middleware that authenticates requests using an HS256
// JWT Bearer token. The token's "sub" claim becomes the actor's user id and
// the optional "name" claim its display name. Requests without a valid token
// proceed as anonymous; the permission layer decides what anonymous callers
// may do, which keeps public reads possible on open tables.
func Auth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				writeUnauthorized(w, "authorization header must use the Bearer scheme")
				return
			}

			actor, err := parseToken(strings.TrimPrefix(auth, "Bearer "), key)
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(domain.WithActor(r.Context(), actor)))
		})
	}
}

func parseToken(tokenStr string, key []byte) (domain.Actor, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Actor{}, fmt.Errorf("unsupported claim type %T", tok.Claims)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return domain.Actor{}, fmt.Errorf("token has no subject")
	}

	actor := domain.Actor{UserID: sub}
	if name, ok := claims["name"].(string); ok {
		actor.Name = name
	}
	return actor, nil
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    401,
		"message": msg,
	})
}
