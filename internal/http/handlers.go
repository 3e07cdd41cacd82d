package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"go-chemviz-dashboard-ui/internal/config"
	"go-chemviz-dashboard-ui/internal/connectors/chemstats"
	"go-chemviz-dashboard-ui/internal/connectors/prefs"
	"go-chemviz-dashboard-ui/internal/dataset"
	"go-chemviz-dashboard-ui/internal/session"
)

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *nethttp.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// requireSession resolves the request's bearer token to a live session,
// lazily activating sessions restored from tokens kept across restarts.
// It writes the error response itself when no usable session exists.
func requireSession(w nethttp.ResponseWriter, r *nethttp.Request, backend *chemstats.Client, sessions *session.Registry) (*session.Controller, bool) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, nethttp.StatusUnauthorized, map[string]any{"error": "authentication required"})
		return nil, false
	}

	ctrl, existed := sessions.Get(token)
	if !existed {
		if err := ctrl.Activate(r.Context(), backend); err != nil {
			if errors.Is(err, chemstats.ErrUnauthenticated) {
				sessions.Drop(token)
				writeJSON(w, nethttp.StatusUnauthorized, map[string]any{"error": "session expired, please log in again"})
				return nil, false
			}
			log.Printf("session activation: history fetch failed: %v", err)
		}
	}
	return ctrl, true
}

// dropOnAuthFailure handles a backend 401 raised mid-session: the stored
// credential is discarded and the browser told to clear its token.
func dropOnAuthFailure(w nethttp.ResponseWriter, token string, sessions *session.Registry) {
	sessions.Drop(token)
	writeJSON(w, nethttp.StatusUnauthorized, map[string]any{"error": "session expired, please log in again"})
}

func loginHandler(backend *chemstats.Client, sessions *session.Registry, prefsStore *prefs.SQLiteStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
		body.Username = strings.TrimSpace(body.Username)
		if body.Username == "" || body.Password == "" {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "username and password are required"})
			return
		}

		token, err := backend.Login(r.Context(), body.Username, body.Password)
		if err != nil {
			var authErr *chemstats.AuthError
			if errors.As(err, &authErr) {
				writeJSON(w, nethttp.StatusUnauthorized, map[string]any{"error": authErr.Message})
				return
			}
			log.Printf("login: backend call failed: %v", err)
			writeJSON(w, nethttp.StatusBadGateway, map[string]any{"error": "analysis service is unreachable"})
			return
		}

		ctrl := session.NewController(token, body.Username)
		sessions.Put(ctrl)
		if err := ctrl.Activate(r.Context(), backend); err != nil {
			log.Printf("login: initial history fetch failed: %v", err)
		}

		restorePrefs(r, ctrl, prefsStore)
		recordActivity(r, prefsStore, ctrl.Subject(), "login", body.Username)

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"token":    token,
			"username": body.Username,
			"state":    ctrl.Store().Snapshot(),
		})
	}
}

// restorePrefs applies any persisted view and dataset selection to a fresh
// session. Unknown dataset ids and views are ignored.
func restorePrefs(r *nethttp.Request, ctrl *session.Controller, prefsStore *prefs.SQLiteStore) {
	if prefsStore == nil {
		return
	}
	p, err := prefsStore.GetPrefs(r.Context(), ctrl.Subject())
	if err != nil {
		if !errors.Is(err, prefs.ErrNotFound) {
			log.Printf("prefs: restore failed: %v", err)
		}
		return
	}
	if v, err := dataset.ParseView(p.ActiveView); err == nil {
		ctrl.Store().SetView(v)
	}
	if p.DatasetID > 0 {
		if _, ok := ctrl.Store().SelectAndFocus(p.DatasetID); ok {
			if v, err := dataset.ParseView(p.ActiveView); err == nil {
				ctrl.Store().SetView(v)
			}
		}
	}
}

// persistPrefs saves the session's current view and selection. Failures are
// logged and never surfaced; preferences are best-effort.
func persistPrefs(r *nethttp.Request, ctrl *session.Controller, prefsStore *prefs.SQLiteStore) {
	if prefsStore == nil {
		return
	}
	var datasetID int64
	if d, ok := ctrl.Store().Current(); ok {
		datasetID = d.ID
	}
	start := time.Now()
	err := prefsStore.SavePrefs(r.Context(), prefs.Prefs{
		Subject:    ctrl.Subject(),
		Username:   ctrl.Username(),
		ActiveView: string(ctrl.Store().View()),
		DatasetID:  datasetID,
	})
	recordStoreOp("prefs", "save_prefs", time.Since(start).Seconds(), err)
	if err != nil {
		log.Printf("prefs: save failed: %v", err)
	}
}

func recordActivity(r *nethttp.Request, prefsStore *prefs.SQLiteStore, subject, action, detail string) {
	if prefsStore == nil {
		return
	}
	start := time.Now()
	err := prefsStore.RecordActivity(r.Context(), subject, action, detail)
	recordStoreOp("prefs", "record_activity", time.Since(start).Seconds(), err)
	if err != nil {
		log.Printf("prefs: record activity failed: %v", err)
	}
}

func registerHandler(backend *chemstats.Client) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
		body.Username = strings.TrimSpace(body.Username)
		if body.Username == "" || body.Password == "" {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "username and password are required"})
			return
		}

		if err := backend.Register(r.Context(), body.Username, body.Password); err != nil {
			var authErr *chemstats.AuthError
			if errors.As(err, &authErr) {
				writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": authErr.Message})
				return
			}
			log.Printf("register: backend call failed: %v", err)
			writeJSON(w, nethttp.StatusBadGateway, map[string]any{"error": "analysis service is unreachable"})
			return
		}

		writeJSON(w, nethttp.StatusCreated, map[string]any{
			"registered": true,
			"message":    "account created, you can log in now",
		})
	}
}

func logoutHandler(sessions *session.Registry, prefsStore *prefs.SQLiteStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		token := bearerToken(r)
		if token != "" {
			if prefsStore != nil {
				recordActivity(r, prefsStore, session.Subject(token), "logout", "")
			}
			sessions.Drop(token)
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"logged_out": true})
	}
}

func stateHandler(backend *chemstats.Client, sessions *session.Registry, prefsStore *prefs.SQLiteStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctrl, ok := requireSession(w, r, backend, sessions)
		if !ok {
			return
		}

		username := ctrl.Username()
		if username == "" && prefsStore != nil {
			// Session restored from a bare token kept across restarts.
			if p, err := prefsStore.GetPrefs(r.Context(), ctrl.Subject()); err == nil {
				username = p.Username
			}
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"username": username,
			"views":    dataset.Views(),
			"state":    ctrl.Store().Snapshot(),
		})
	}
}

func historyHandler(backend *chemstats.Client, sessions *session.Registry) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctrl, ok := requireSession(w, r, backend, sessions)
		if !ok {
			return
		}

		if r.URL.Query().Get("refresh") != "false" {
			if err := ctrl.RefreshHistory(r.Context(), backend); err != nil {
				if errors.Is(err, chemstats.ErrUnauthenticated) {
					dropOnAuthFailure(w, ctrl.Token(), sessions)
					return
				}
				log.Printf("history: refresh failed: %v", err)
			}
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"history": ctrl.Store().History(),
			"stale":   ctrl.Store().Stale(),
		})
	}
}

func uploadHandler(cfg config.Config, backend *chemstats.Client, sessions *session.Registry, prefsStore *prefs.SQLiteStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctrl, ok := requireSession(w, r, backend, sessions)
		if !ok {
			return
		}

		filename, blob, ok := readUploadFile(w, r, cfg)
		if !ok {
			return
		}

		item, err := backend.UploadDataset(r.Context(), ctrl.Token(), filename, blob)
		if err != nil {
			if errors.Is(err, chemstats.ErrUnauthenticated) {
				dropOnAuthFailure(w, ctrl.Token(), sessions)
				return
			}
			var upErr *chemstats.UploadError
			if errors.As(err, &upErr) {
				writeJSON(w, nethttp.StatusBadGateway, map[string]any{"error": upErr.Message})
				return
			}
			log.Printf("upload: backend call failed: %v", err)
			writeJSON(w, nethttp.StatusBadGateway, map[string]any{"error": "upload failed"})
			return
		}

		ctrl.Store().ApplyUpload(item)
		if err := ctrl.RefreshHistory(r.Context(), backend); err != nil && !errors.Is(err, chemstats.ErrUnauthenticated) {
			log.Printf("upload: history refresh failed: %v", err)
		}

		recordActivity(r, prefsStore, ctrl.Subject(), "upload", filename)
		persistPrefs(r, ctrl, prefsStore)

		writeJSON(w, nethttp.StatusCreated, map[string]any{
			"dataset": item,
			"state":   ctrl.Store().Snapshot(),
		})
	}
}

// readUploadFile pulls the multipart "file" field out of the request,
// enforcing the size cap and extension policy. It writes the error response
// on rejection.
func readUploadFile(w nethttp.ResponseWriter, r *nethttp.Request, cfg config.Config) (string, []byte, bool) {
	r.Body = nethttp.MaxBytesReader(w, r.Body, cfg.UploadMaxBytes)
	if err := r.ParseMultipartForm(cfg.UploadMaxBytes); err != nil {
		writeJSON(w, nethttp.StatusRequestEntityTooLarge, map[string]any{"error": "file is too large or the form is malformed"})
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "select a file first"})
		return "", nil, false
	}
	defer file.Close()

	if !cfg.AllowsExtension(header.Filename) {
		writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "only CSV files are accepted"})
		return "", nil, false
	}

	blob, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "could not read the uploaded file"})
		return "", nil, false
	}
	if len(blob) == 0 {
		writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "the selected file is empty"})
		return "", nil, false
	}
	return header.Filename, blob, true
}

func selectDatasetHandler(backend *chemstats.Client, sessions *session.Registry, prefsStore *prefs.SQLiteStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctrl, ok := requireSession(w, r, backend, sessions)
		if !ok {
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid dataset id"})
			return
		}

		d, found := ctrl.Store().SelectAndFocus(id)
		if !found {
			writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "dataset not found in history"})
			return
		}

		recordActivity(r, prefsStore, ctrl.Subject(), "select_dataset", d.Filename)
		persistPrefs(r, ctrl, prefsStore)

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"dataset": d,
			"state":   ctrl.Store().Snapshot(),
		})
	}
}

func viewHandler(backend *chemstats.Client, sessions *session.Registry, prefsStore *prefs.SQLiteStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctrl, ok := requireSession(w, r, backend, sessions)
		if !ok {
			return
		}

		if r.Method == nethttp.MethodGet {
			writeJSON(w, nethttp.StatusOK, map[string]any{
				"active_view": ctrl.Store().View(),
				"views":       dataset.Views(),
			})
			return
		}

		var body struct {
			View string `json:"view"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
		v, err := dataset.ParseView(body.View)
		if err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		ctrl.Store().SetView(v)
		persistPrefs(r, ctrl, prefsStore)

		writeJSON(w, nethttp.StatusOK, map[string]any{"active_view": v})
	}
}

func chartsHandler(backend *chemstats.Client, sessions *session.Registry) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctrl, ok := requireSession(w, r, backend, sessions)
		if !ok {
			return
		}

		d, found := ctrl.Store().Current()
		if !found {
			writeJSON(w, nethttp.StatusOK, map[string]any{
				"empty":   true,
				"message": "no dataset selected yet, upload a CSV to get started",
			})
			return
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"dataset_id": d.ID,
			"filename":   d.Filename,
			"charts":     dataset.DeriveBreakdowns(d.Stats),
		})
	}
}

func preflightHandler(cfg config.Config, backend *chemstats.Client, sessions *session.Registry) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctrl, ok := requireSession(w, r, backend, sessions)
		if !ok {
			return
		}

		filename, blob, ok := readUploadFile(w, r, cfg)
		if !ok {
			return
		}

		summary, err := dataset.ParsePreflight(bytes.NewReader(blob))
		if err != nil {
			if errors.Is(err, dataset.ErrEmptyCSV) {
				writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "the CSV has no data rows"})
				return
			}
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "the file does not parse as CSV"})
			return
		}

		ctrl.Store().SetPendingFile(filename)

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"filename":  filename,
			"preflight": summary,
		})
	}
}

func activityHandler(cfg config.Config, backend *chemstats.Client, sessions *session.Registry, prefsStore *prefs.SQLiteStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctrl, ok := requireSession(w, r, backend, sessions)
		if !ok {
			return
		}

		if prefsStore == nil {
			writeJSON(w, nethttp.StatusOK, map[string]any{
				"enabled":  false,
				"activity": []prefs.Activity{},
			})
			return
		}

		start := time.Now()
		items, err := prefsStore.ListActivity(r.Context(), ctrl.Subject(), cfg.ActivityLimit)
		recordStoreOp("prefs", "list_activity", time.Since(start).Seconds(), err)
		if err != nil {
			log.Printf("activity: list failed: %v", err)
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "could not load activity"})
			return
		}
		if items == nil {
			items = []prefs.Activity{}
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"enabled":  true,
			"activity": items,
		})
	}
}
