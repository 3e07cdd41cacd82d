package http

import (
	nethttp "net/http"

	"go-chemviz-dashboard-ui/internal/config"
)

// uploadPolicyHandler exposes the upload constraints so the page can reject
// obviously bad files before a round trip.
func uploadPolicyHandler(cfg config.Config) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"max_bytes":    cfg.UploadMaxBytes,
			"extensions":   cfg.UploadExtensions,
			"preview_rows": cfg.PreviewRows,
		})
	}
}
