package relay

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// RequireBearer rejects requests without an HS256 JWT signed with secret.
// An empty secret disables the check.
func RequireBearer(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(secret) == 0 {
			return next
		}
		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, "Missing authorization header")
				return
			}
			tok, err := parser.Parse(raw, func(*jwt.Token) (any, error) { return secret, nil })
			if err != nil || !tok.Valid {
				unauthorized(w, "Invalid JWT")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
