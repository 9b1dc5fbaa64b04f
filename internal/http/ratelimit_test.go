package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docketHTTP "github.com/MrJamesThe3rd/docket/internal/http"
	"github.com/MrJamesThe3rd/docket/internal/http/auth"
)

func TestUploadLimit(t *testing.T) {
	limit, err := docketHTTP.UploadLimit("2-M", false)
	require.NoError(t, err)

	handler := limit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func(owner uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil)
		req = req.WithContext(auth.WithOwner(req.Context(), owner))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec.Code
	}

	ana, ben := uuid.New(), uuid.New()

	assert.Equal(t, http.StatusAccepted, send(ana))
	assert.Equal(t, http.StatusAccepted, send(ana))
	assert.Equal(t, http.StatusTooManyRequests, send(ana))
	assert.Equal(t, http.StatusAccepted, send(ben), "limits are per owner")
}

func TestUploadLimit_BadRate(t *testing.T) {
	_, err := docketHTTP.UploadLimit("lots", false)
	assert.Error(t, err)
}
