package http

import (
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"go-chemviz-dashboard-ui/internal/connectors/chemstats"
	"go-chemviz-dashboard-ui/internal/connectors/prefs"
	"go-chemviz-dashboard-ui/internal/session"
)

func reportDownloadHandler(backend *chemstats.Client, sessions *session.Registry, prefsStore *prefs.SQLiteStore) nethttp.HandlerFunc {
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

		start := time.Now()
		blob, err := backend.FetchReport(r.Context(), ctrl.Token(), id)
		if err != nil {
			recordReportDownload("error", time.Since(start).Seconds())
			if errors.Is(err, chemstats.ErrUnauthenticated) {
				dropOnAuthFailure(w, ctrl.Token(), sessions)
				return
			}
			var repErr *chemstats.ReportError
			if errors.As(err, &repErr) {
				log.Printf("report: fetch failed: %v", repErr)
				writeJSON(w, nethttp.StatusBadGateway, map[string]any{"error": repErr.Message})
				return
			}
			log.Printf("report: fetch failed: %v", err)
			writeJSON(w, nethttp.StatusBadGateway, map[string]any{"error": "report download failed"})
			return
		}
		recordReportDownload("ok", time.Since(start).Seconds())

		recordActivity(r, prefsStore, ctrl.Subject(), "download_report", strconv.FormatInt(id, 10))

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reportFilename(ctrl, id)))
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write(blob)
	}
}

// reportFilename names the downloaded PDF after the dataset's original CSV
// filename, falling back to the dataset id when it is not in the history.
func reportFilename(ctrl *session.Controller, id int64) string {
	name := ""
	for _, d := range ctrl.Store().History() {
		if d.ID == id {
			name = d.Filename
			break
		}
	}
	if name == "" {
		if d, ok := ctrl.Store().Current(); ok && d.ID == id {
			name = d.Filename
		}
	}
	if name == "" {
		return fmt.Sprintf("Report_dataset_%d.pdf", id)
	}
	return fmt.Sprintf("Report_%s.pdf", name)
}
