package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
)

// Authenticator resolves a bearer token to the session it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.AuthContext, error)
}

// BearerToken returns the token from "Authorization: Bearer ...", or from
// the access_token query parameter, which browsers need for websockets.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// RequireAuth rejects requests without a live session and stores the
// session's AuthContext on the request context.
func RequireAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w)
				return
			}
			ac, err := a.Authenticate(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="familybank"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}
