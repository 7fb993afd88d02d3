package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanprep/scanprep/internal/store"
)

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(DefaultConfig(), st), st
}

func seed(t *testing.T, st *store.Store) store.Record {
	t.Helper()
	rec, err := st.Insert(context.Background(), store.Record{
		Basename: "fax_0312",
		Path:     "/data/final/fax_0312.pdf",
		DocType:  "referral",
		Pages:    3,
		Text:     "referred to dr smith",
	})
	require.NoError(t, err)
	return rec
}

func TestListDocuments(t *testing.T) {
	s, st := testServer(t)
	seed(t, st)

	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var records []store.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "fax_0312", records[0].Basename)
}

func TestListDocuments_EmptyIsArray(t *testing.T) {
	s, _ := testServer(t)

	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

func TestGetDocument(t *testing.T) {
	s, st := testServer(t)
	seed(t, st)

	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents/fax_0312", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var rec store.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "referral", rec.DocType)
}

func TestGetDocument_NotFound(t *testing.T) {
	s, _ := testServer(t)

	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetDocumentText(t *testing.T) {
	s, st := testServer(t)
	seed(t, st)

	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents/fax_0312/text", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "referred to dr smith", rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
}

func TestFlagDocument(t *testing.T) {
	s, st := testServer(t)
	seed(t, st)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/fax_0312/flag",
		strings.NewReader(`{"flagged": true}`))
	s.Routes().ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	got, err := st.GetByBasename(context.Background(), "fax_0312")
	require.NoError(t, err)
	assert.True(t, got.Flagged)
}

func TestFlagDocument_BadRequests(t *testing.T) {
	s, st := testServer(t)
	seed(t, st)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/fax_0312/flag",
		strings.NewReader("not json"))
	s.Routes().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/documents/unknown/flag",
		strings.NewReader(`{"flagged": true}`))
	s.Routes().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := testServer(t)

	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t)

	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
