package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-chemviz-dashboard-ui/internal/config"
)

// backendStub fakes the remote analysis service.
func backendStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := nethttp.NewServeMux()

	mux.HandleFunc("/api/token/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "No active account found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "jwt-" + body["username"]})
	})

	mux.HandleFunc("/api/register/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] == "taken" {
			w.WriteHeader(nethttp.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string][]string{"username": {"A user with that username already exists."}})
			return
		}
		w.WriteHeader(nethttp.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1})
	})

	mux.HandleFunc("/api/stats/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer jwt-") {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		if r.Method == nethttp.MethodPost {
			_ = r.ParseMultipartForm(1 << 20)
			_, header, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(nethttp.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing file field"})
				return
			}
			w.WriteHeader(nethttp.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": 42, "filename": header.Filename, "date": "2026-09-01",
				"stats": map[string]any{"count": 3, "avg_pressure": 4.0, "avg_temp": 83.7, "types": map[string]int{"Pump": 2, "Valve": 1}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 2, "filename": "newer.csv", "date": "2026-08-30", "stats": map[string]any{"count": 5}},
			{"id": 1, "filename": "older.csv", "date": "2026-08-28", "stats": map[string]any{"count": 4}},
		})
	})

	mux.HandleFunc("/api/report/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer jwt-") {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 stub"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	stub := backendStub(t)

	cfg := config.Config{
		ListenAddr:          ":0",
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		BackendBaseURL:      stub.URL,
		BackendTimeout:      2 * time.Second,
		BackendRetryMax:     1,
		BackendRetryBackoff: time.Millisecond,
		UploadMaxBytes:      1 << 20,
		UploadExtensions:    []string{".csv"},
		PreviewRows:         10,
		ActivityLimit:       50,
	}

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(blob)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rr, req)
	return rr
}

func loginAs(t *testing.T, srv *Server, username string) string {
	t.Helper()
	rr := doJSON(t, srv, nethttp.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username, "password": "secret",
	})
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("login failed with status %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return payload.Token
}

func TestLoginReturnsTokenAndBootstrappedState(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, nethttp.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "secret",
	})
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", nethttp.StatusOK, rr.Code, rr.Body.String())
	}

	var payload struct {
		Token string `json:"token"`
		State struct {
			ActiveView string `json:"active_view"`
			Current    *struct {
				ID int64 `json:"id"`
			} `json:"current"`
			History []any `json:"history"`
		} `json:"state"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Token != "jwt-alice" {
		t.Fatalf("unexpected token %q", payload.Token)
	}
	if len(payload.State.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(payload.State.History))
	}
	if payload.State.Current == nil || payload.State.Current.ID != 2 {
		t.Fatalf("expected newest dataset auto-selected, got %+v", payload.State.Current)
	}
	if payload.State.ActiveView != "dashboard" {
		t.Fatalf("expected dashboard view, got %q", payload.State.ActiveView)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, nethttp.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	if rr.Code != nethttp.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", nethttp.StatusUnauthorized, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "No active account found") {
		t.Fatalf("expected backend detail in response, got %s", rr.Body.String())
	}
}

func TestLoginMissingFields(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, nethttp.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice"})
	if rr.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", nethttp.StatusBadRequest, rr.Code)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, nethttp.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "taken", "password": "secret",
	})
	if rr.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", nethttp.StatusBadRequest, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "already exists") {
		t.Fatalf("expected duplicate-username message, got %s", rr.Body.String())
	}
}

func TestStateRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, nethttp.MethodGet, "/api/v1/state", "", nil)
	if rr.Code != nethttp.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", nethttp.StatusUnauthorized, rr.Code)
	}
}

func TestExpiredTokenDropsSession(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, nethttp.MethodGet, "/api/v1/state", "not-a-real-token", nil)
	if rr.Code != nethttp.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", nethttp.StatusUnauthorized, rr.Code)
	}
	if srv.sessions.Len() != 0 {
		t.Fatalf("expected rejected session to be dropped, %d live", srv.sessions.Len())
	}
}

func TestViewSwitchValidation(t *testing.T) {
	srv := newTestServer(t)
	token := loginAs(t, srv, "alice")

	rr := doJSON(t, srv, nethttp.MethodPost, "/api/v1/view", token, map[string]string{"view": "history"})
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", nethttp.StatusOK, rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, nethttp.MethodPost, "/api/v1/view", token, map[string]string{"view": "settings"})
	if rr.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected status %d for unknown view, got %d", nethttp.StatusBadRequest, rr.Code)
	}

	rr = doJSON(t, srv, nethttp.MethodGet, "/api/v1/view", token, nil)
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d", nethttp.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"active_view":"history"`) {
		t.Fatalf("expected history view to stick, got %s", rr.Body.String())
	}
}

func TestSelectDataset(t *testing.T) {
	srv := newTestServer(t)
	token := loginAs(t, srv, "alice")

	rr := doJSON(t, srv, nethttp.MethodPost, "/api/v1/datasets/1/select", token, nil)
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", nethttp.StatusOK, rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"active_view":"dashboard"`) {
		t.Fatalf("selecting history entry must focus the dashboard, got %s", rr.Body.String())
	}

	rr = doJSON(t, srv, nethttp.MethodPost, "/api/v1/datasets/999/select", token, nil)
	if rr.Code != nethttp.StatusNotFound {
		t.Fatalf("expected status %d for unknown id, got %d", nethttp.StatusNotFound, rr.Code)
	}
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, srv *Server, path, token, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	buf, contentType := multipartBody(t, filename, content)
	req := httptest.NewRequest(nethttp.MethodPost, path, buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rr, req)
	return rr
}

func TestUploadDatasetBecomesCurrent(t *testing.T) {
	srv := newTestServer(t)
	token := loginAs(t, srv, "alice")

	rr := doUpload(t, srv, "/api/v1/datasets", token, "plant.csv", "Equipment Name,Type\nPump A,Pump\n")
	if rr.Code != nethttp.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", nethttp.StatusCreated, rr.Code, rr.Body.String())
	}

	var payload struct {
		Dataset struct {
			ID int64 `json:"id"`
		} `json:"dataset"`
		State struct {
			ActiveView string `json:"active_view"`
			Current    *struct {
				ID int64 `json:"id"`
			} `json:"current"`
		} `json:"state"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Dataset.ID != 42 {
		t.Fatalf("unexpected dataset id %d", payload.Dataset.ID)
	}
	if payload.State.Current == nil || payload.State.Current.ID != 42 {
		t.Fatalf("expected uploaded dataset to become current, got %+v", payload.State.Current)
	}
	if payload.State.ActiveView != "dashboard" {
		t.Fatalf("upload must switch to dashboard, got %q", payload.State.ActiveView)
	}
}

func TestUploadRejectsNonCSVExtension(t *testing.T) {
	srv := newTestServer(t)
	token := loginAs(t, srv, "alice")

	rr := doUpload(t, srv, "/api/v1/datasets", token, "plant.xlsx", "not a csv")
	if rr.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", nethttp.StatusBadRequest, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "CSV") {
		t.Fatalf("expected extension message, got %s", rr.Body.String())
	}
}

func TestPreflightSummarizesCSV(t *testing.T) {
	srv := newTestServer(t)
	token := loginAs(t, srv, "alice")

	csv := "Equipment Name,Type,Flowrate,Pressure,Temperature\nPump A,Pump,120,4.0,88\nValve B,Valve,80,6.0,72\n"
	rr := doUpload(t, srv, "/api/v1/uploads/preflight", token, "plant.csv", csv)
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", nethttp.StatusOK, rr.Code, rr.Body.String())
	}

	var payload struct {
		Preflight struct {
			Rows        int     `json:"rows"`
			AvgPressure float64 `json:"avg_pressure"`
		} `json:"preflight"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Preflight.Rows != 2 || payload.Preflight.AvgPressure != 5.0 {
		t.Fatalf("unexpected preflight summary: %+v", payload.Preflight)
	}
}

func TestChartsForAutoSelectedDataset(t *testing.T) {
	srv := newTestServer(t)
	token := loginAs(t, srv, "alice")

	rr := doJSON(t, srv, nethttp.MethodGet, "/api/v1/charts", token, nil)
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d", nethttp.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "type_shares") {
		t.Fatalf("expected derived chart payload, got %s", rr.Body.String())
	}
}

func TestReportDownloadNamesFileAfterDataset(t *testing.T) {
	srv := newTestServer(t)
	token := loginAs(t, srv, "alice")

	rr := doJSON(t, srv, nethttp.MethodGet, "/api/v1/reports/2", token, nil)
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", nethttp.StatusOK, rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected PDF content type, got %q", ct)
	}
	dispo := rr.Header().Get("Content-Disposition")
	if !strings.Contains(dispo, `filename="Report_newer.csv.pdf"`) {
		t.Fatalf("unexpected disposition %q", dispo)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected PDF bytes, got %s", rr.Body.String())
	}
}

func TestLogoutDropsSession(t *testing.T) {
	srv := newTestServer(t)
	token := loginAs(t, srv, "alice")
	if srv.sessions.Len() != 1 {
		t.Fatalf("expected one live session, got %d", srv.sessions.Len())
	}

	rr := doJSON(t, srv, nethttp.MethodPost, "/api/v1/auth/logout", token, nil)
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d", nethttp.StatusOK, rr.Code)
	}
	if srv.sessions.Len() != 0 {
		t.Fatalf("expected session to be dropped, %d live", srv.sessions.Len())
	}
}

func TestHistoryEndpointReturnsRows(t *testing.T) {
	srv := newTestServer(t)
	token := loginAs(t, srv, "alice")

	rr := doJSON(t, srv, nethttp.MethodGet, "/api/v1/datasets", token, nil)
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d", nethttp.StatusOK, rr.Code)
	}

	var payload struct {
		History []struct {
			ID int64 `json:"id"`
		} `json:"history"`
		Stale bool `json:"stale"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.History) != 2 || payload.History[0].ID != 2 {
		t.Fatalf("unexpected history payload: %+v", payload.History)
	}
	if payload.Stale {
		t.Fatalf("history must not be stale after a successful refresh")
	}
}

func TestUploadPolicyEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, nethttp.MethodGet, "/api/v1/settings/upload-policy", "", nil)
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d", nethttp.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `".csv"`) {
		t.Fatalf("expected csv extension in policy, got %s", rr.Body.String())
	}
}

func TestDashboardServesHTML(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, nethttp.MethodGet, "/", "", nil)
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d", nethttp.StatusOK, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("expected HTML content type, got %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "ChemViz") {
		t.Fatalf("expected dashboard markup")
	}
}

func TestServicesStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, nethttp.MethodGet, "/api/v1/status/services", "", nil)
	if rr.Code != nethttp.StatusOK {
		t.Fatalf("expected status %d, got %d", nethttp.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "chemstats-backend") {
		t.Fatalf("expected backend entry, got %s", rr.Body.String())
	}
}
