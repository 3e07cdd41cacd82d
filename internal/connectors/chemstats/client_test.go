package chemstats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, 2, time.Millisecond)
}

func TestLoginReturnsAccessToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/token/", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])

		_ = json.NewEncoder(w).Encode(map[string]string{"access": "jwt-123"})
	})

	token, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-123", token)
}

func TestLoginBadCredentialsSurfacesDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "No active account found"})
	})

	_, err := c.Login(context.Background(), "alice", "wrong")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "No active account found", authErr.Message)
}

func TestRegisterFieldErrorSurfaced(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string][]string{"username": {"A user with that username already exists."}})
	})

	err := c.Register(context.Background(), "alice", "secret")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "already exists")
}

func TestListHistoryAttachesBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-123", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1, "filename": "a.csv"}})
	})

	items, err := c.ListHistory(context.Background(), "jwt-123")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a.csv", items[0].Filename)
}

func TestListHistory401IsUnauthenticated(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.ListHistory(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestListHistoryRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	})

	_, err := c.ListHistory(context.Background(), "jwt-123")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestUploadDatasetSendsMultipartFileField(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "plant.csv", header.Filename)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42, "filename": "plant.csv"})
	})

	item, err := c.UploadDataset(context.Background(), "jwt-123", "plant.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), item.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUploadDatasetServerErrorNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "parser crashed"})
	})

	_, err := c.UploadDataset(context.Background(), "jwt-123", "plant.csv", []byte("x"))
	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "parser crashed", upErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "uploads must never be retried")
}

func TestUploadDatasetRejectsEmptyFile(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, 0, 0)
	_, err := c.UploadDataset(context.Background(), "jwt", "a.csv", nil)
	var upErr *UploadError
	assert.ErrorAs(t, err, &upErr)
}

func TestFetchReportReturnsPDFBytes(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/report/7/", r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	})

	blob, err := c.FetchReport(context.Background(), "jwt-123", 7)
	require.NoError(t, err)
	assert.Equal(t, pdf, blob)
}

func TestFetchReportFailureCarriesStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "no such dataset"})
	})

	_, err := c.FetchReport(context.Background(), "jwt-123", 999)
	var repErr *ReportError
	require.ErrorAs(t, err, &repErr)
	assert.Equal(t, http.StatusNotFound, repErr.Status)
	assert.Equal(t, "no such dataset", repErr.Message)
}

func TestNewClientTrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://example.test/", time.Second, 0, 0)
	assert.Equal(t, "http://example.test", c.BaseURL())
}
