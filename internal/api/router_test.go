package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// The account read routes carry balances and full transaction history, so
// they sit behind the JWT middleware and only serve the token's own account.
func TestRouter_AccountReadsRequireOwnership(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, nil, nil)
	router := NewRouter(h, testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{
		"account_id": 42,
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	cases := []struct {
		name     string
		path     string
		token    string
		wantCode int
	}{
		{"account without token", "/api/v1/accounts/42", "", http.StatusUnauthorized},
		{"entries without token", "/api/v1/accounts/42/entries", "", http.StatusUnauthorized},
		{"account of someone else", "/api/v1/accounts/7", token, http.StatusForbidden},
		{"entries of someone else", "/api/v1/accounts/7/entries", token, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantCode)
			}
		})
	}
}
