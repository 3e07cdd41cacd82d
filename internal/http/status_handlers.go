package http

import (
	"context"
	nethttp "net/http"
	"time"

	"go-chemviz-dashboard-ui/internal/connectors/chemstats"
	"go-chemviz-dashboard-ui/internal/connectors/prefs"
	"go-chemviz-dashboard-ui/internal/session"
)

const statusProbeTimeout = 5 * time.Second

func servicesStatusHandler(backend *chemstats.Client, prefsStore *prefs.SQLiteStore, sessions *session.Registry) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), statusProbeTimeout)
		defer cancel()

		services := make([]map[string]any, 0, 2)

		backendEntry := map[string]any{
			"name":    "chemstats-backend",
			"enabled": backend.Enabled(),
		}
		if backend.Enabled() {
			start := time.Now()
			probe, err := backend.Probe(ctx)
			recordExternalProbe("chemstats", "probe", time.Since(start).Seconds(), err)
			if err != nil {
				backendEntry["healthy"] = false
				backendEntry["error"] = err.Error()
			} else {
				backendEntry["healthy"] = true
				backendEntry["ping_ms"] = probe.PingMS
				backendEntry["origin"] = probe.Origin
			}
		}
		services = append(services, backendEntry)

		prefsEntry := map[string]any{
			"name":    "prefs-sqlite",
			"enabled": prefsStore != nil,
		}
		if prefsStore != nil {
			start := time.Now()
			err := prefsStore.Ping(ctx)
			recordStoreOp("prefs", "ping", time.Since(start).Seconds(), err)
			if err != nil {
				prefsEntry["healthy"] = false
				prefsEntry["error"] = err.Error()
			} else {
				prefsEntry["healthy"] = true
			}
		}
		services = append(services, prefsEntry)

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"generated_at":  time.Now().UTC(),
			"services":      services,
			"live_sessions": sessions.Len(),
		})
	}
}
