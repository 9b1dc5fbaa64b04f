package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/docket/internal/http/auth"
)

const secret = "test-secret"

func TestMiddleware(t *testing.T) {
	owner := uuid.New()

	valid, err := auth.Issue(secret, "docket-auth", owner, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	expired, err := auth.Issue(secret, "docket-auth", owner, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)

	otherIssuer, err := auth.Issue(secret, "someone-else", owner, jwt.RegisteredClaims{})
	require.NoError(t, err)

	wrongKey, err := auth.Issue("other-secret", "docket-auth", owner, jwt.RegisteredClaims{})
	require.NoError(t, err)

	notAnOwner, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "ana",
		Issuer:  "docket-auth",
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	type testCase struct {
		name       string
		header     string
		wantStatus int
	}

	tests := []testCase{
		{name: "Valid", header: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "LowercaseScheme", header: "bearer " + valid, wantStatus: http.StatusOK},
		{name: "Missing", header: "", wantStatus: http.StatusUnauthorized},
		{name: "NotBearer", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "Expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "WrongIssuer", header: "Bearer " + otherIssuer, wantStatus: http.StatusUnauthorized},
		{name: "WrongKey", header: "Bearer " + wrongKey, wantStatus: http.StatusUnauthorized},
		{name: "SubjectNotUUID", header: "Bearer " + notAnOwner, wantStatus: http.StatusUnauthorized},
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := auth.Owner(r.Context())
		assert.True(t, ok)
		assert.Equal(t, owner, got)
		w.WriteHeader(http.StatusOK)
	})

	handler := auth.Middleware(secret, "docket-auth")(next)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
