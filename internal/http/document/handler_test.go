package document_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/http/auth"
	documentHTTP "github.com/MrJamesThe3rd/docket/internal/http/document"
	"github.com/MrJamesThe3rd/docket/internal/memstore"
	"github.com/MrJamesThe3rd/docket/internal/pipeline"
	"github.com/MrJamesThe3rd/docket/internal/storage"
)

const maxBytes = 256

var receipt = []byte("CAFE CENTRAL\n2026-03-14\nTOTAL 12,40 EUR\n")

func newServer(t *testing.T, owner uuid.UUID) http.Handler {
	t.Helper()

	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	store := memstore.New()
	cfg := pipeline.DefaultConfig()
	cfg.MaxUploadBytes = maxBytes

	orch := pipeline.New(pipeline.Deps{Repo: store, Files: files}, cfg)
	h := documentHTTP.NewHandler(document.NewService(store, files), orch, maxBytes, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithOwner(req.Context(), owner)))
		})
	})
	r.Route("/documents", h.Routes)

	return r
}

func multipartBody(t *testing.T, kind, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	if kind != "" {
		require.NoError(t, mw.WriteField("kind", kind))
	}

	if data != nil {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)

		_, err = part.Write(data)
		require.NoError(t, err)
	}

	require.NoError(t, mw.Close())

	return body, mw.FormDataContentType()
}

func upload(t *testing.T, srv http.Handler, kind string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, kind, "scan.txt", data)
	req := httptest.NewRequest(http.MethodPost, "/documents/", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	return rec
}

func TestHandler_Upload(t *testing.T) {
	type testCase struct {
		name       string
		kind       string
		data       []byte
		wantStatus int
	}

	tests := []testCase{
		{name: "Accepted", kind: "receipt", data: receipt, wantStatus: http.StatusAccepted},
		{name: "UnknownKind", kind: "invoice", data: receipt, wantStatus: http.StatusUnprocessableEntity},
		{name: "UnsupportedType", kind: "receipt", data: []byte("PK\x03\x04\x14\x00\x00\x00"), wantStatus: http.StatusUnsupportedMediaType},
		{name: "TooLarge", kind: "receipt", data: bytes.Repeat([]byte("a"), maxBytes+1), wantStatus: http.StatusRequestEntityTooLarge},
		{name: "MissingFile", kind: "receipt", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, newServer(t, uuid.New()), tt.kind, tt.data)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_Lifecycle(t *testing.T) {
	owner := uuid.New()
	srv := newServer(t, owner)

	rec := upload(t, srv, "receipt", receipt)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var created documentHTTP.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, document.StatusPending, created.Status)
	assert.Equal(t, "text/plain", created.MIMEType)
	assert.Equal(t, "/api/v1/documents/"+created.ID.String(), rec.Header().Get("Location"))

	path := "/documents/" + created.ID.String()

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got documentHTTP.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)
	assert.Nil(t, got.Extraction)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path+"/file", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, receipt, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "scan.txt")

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/?status=pending", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []documentHTTP.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	assert.Len(t, listed, 1)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_OtherOwnerCannotSee(t *testing.T) {
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	store := memstore.New()
	orch := pipeline.New(pipeline.Deps{Repo: store, Files: files}, pipeline.DefaultConfig())

	doc, err := orch.Submit(t.Context(), pipeline.SubmitParams{
		OwnerID:  uuid.New(),
		Kind:     document.KindReceipt,
		Filename: "scan.txt",
		Data:     receipt,
	})
	require.NoError(t, err)

	h := documentHTTP.NewHandler(document.NewService(store, files), orch, maxBytes, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithOwner(req.Context(), uuid.New())))
		})
	})
	r.Route("/documents", h.Routes)

	for _, path := range []string{"/documents/" + doc.ID.String(), "/documents/" + doc.ID.String() + "/file"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
