package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "reyu/pkg/domain"
	"reyu/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userID := id.NewUserID()

	var gotUser id.UserID
	var gotRole requestcontext.Role
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = requestcontext.UserID(r.Context())
		gotRole = requestcontext.ActorRole(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		header     string
		validator  stubValidator
		wantStatus int
		wantRole   requestcontext.Role
	}{
		{"missing header", "", stubValidator{}, http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized, ""},
		{"invalid token", "Bearer bad", stubValidator{err: errors.New("bad")}, http.StatusUnauthorized, ""},
		{"malformed subject", "Bearer ok", stubValidator{claims: &JWTClaims{UserID: "nope"}}, http.StatusUnauthorized, ""},
		{"trader", "Bearer ok", stubValidator{claims: &JWTClaims{UserID: userID.String()}}, http.StatusNoContent, requestcontext.RoleTrader},
		{"admin", "Bearer ok", stubValidator{claims: &JWTClaims{UserID: userID.String(), Role: "admin"}}, http.StatusNoContent, requestcontext.RoleAdmin},
		{"unknown role downgraded", "Bearer ok", stubValidator{claims: &JWTClaims{UserID: userID.String(), Role: "root"}}, http.StatusNoContent, requestcontext.RoleTrader},
		{"system role is not grantable", "Bearer ok", stubValidator{claims: &JWTClaims{UserID: userID.String(), Role: "system"}}, http.StatusNoContent, requestcontext.RoleTrader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser, gotRole = id.UserID{}, ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			RequireAuth(tt.validator, logger)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, userID, gotUser)
				assert.Equal(t, tt.wantRole, gotRole)
			} else {
				assert.Contains(t, rr.Body.String(), `"error":"unauthorized"`)
			}
		})
	}
}
