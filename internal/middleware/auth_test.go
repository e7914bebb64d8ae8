package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
)

type stubAuthenticator map[string]auth.AuthContext

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (auth.AuthContext, error) {
	ac, ok := s[token]
	if !ok {
		return auth.AuthContext{}, auth.ErrInvalidToken
	}
	return ac, nil
}

var sessions = stubAuthenticator{
	"good": {AccountID: "a1", FamilyID: "f1", MemberID: "m1", SessionID: "s1"},
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"bearer header", "Bearer abc", "", "abc"},
		{"lowercase scheme", "bearer abc", "", "abc"},
		{"basic auth ignored", "Basic abc", "", ""},
		{"query fallback", "", "access_token=xyz", "xyz"},
		{"header wins", "Bearer abc", "access_token=xyz", "abc"},
		{"nothing", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/?"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(req); got != tt.want {
				t.Errorf("BearerToken = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireAuthRejects(t *testing.T) {
	handler := RequireAuth(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	for _, header := range []string{"", "Bearer bad"} {
		req := httptest.NewRequest("GET", "/api/family", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want %d", header, rec.Code, http.StatusUnauthorized)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Errorf("header %q: missing WWW-Authenticate", header)
		}
	}
}

func TestRequireAuthValidSession(t *testing.T) {
	var got auth.AuthContext
	handler := RequireAuth(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		got = ac
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/family", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got.FamilyID != "f1" || got.MemberID != "m1" {
		t.Errorf("AuthContext = %+v", got)
	}
}
