package http

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
)

var (
	appStartedAtUnix = time.Now().Unix()
	inFlightRequests int64
	metricsMu        sync.Mutex
	httpSeries       = map[httpMetricKey]*httpMetricSeries{}
	storeOpSeries    = map[storeOpMetricKey]*storeOpMetricSeries{}
	externalSeries   = map[externalMetricKey]*externalMetricSeries{}
	downloadSeries   = map[downloadMetricKey]*downloadMetricSeries{}
)

type httpMetricKey struct {
	Method string
	Path   string
	Status string
}

type httpMetricSeries struct {
	Count              uint64
	DurationSecondsSum float64
}

type storeOpMetricKey struct {
	Store     string
	Operation string
}

type storeOpMetricSeries struct {
	Count              uint64
	Errors             uint64
	DurationSecondsSum float64
}

type externalMetricKey struct {
	Target    string
	Operation string
}

type externalMetricSeries struct {
	Count              uint64
	Errors             uint64
	DurationSecondsSum float64
}

type downloadMetricKey struct {
	Status string
}

type downloadMetricSeries struct {
	Count              uint64
	DurationSecondsSum float64
}

func metricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		metricsMu.Lock()
		httpKeys := make([]httpMetricKey, 0, len(httpSeries))
		for k := range httpSeries {
			httpKeys = append(httpKeys, k)
		}
		sort.Slice(httpKeys, func(i, j int) bool {
			if httpKeys[i].Method != httpKeys[j].Method {
				return httpKeys[i].Method < httpKeys[j].Method
			}
			if httpKeys[i].Path != httpKeys[j].Path {
				return httpKeys[i].Path < httpKeys[j].Path
			}
			return httpKeys[i].Status < httpKeys[j].Status
		})
		httpSnapshot := make(map[httpMetricKey]httpMetricSeries, len(httpKeys))
		for _, k := range httpKeys {
			httpSnapshot[k] = *httpSeries[k]
		}

		storeKeys := make([]storeOpMetricKey, 0, len(storeOpSeries))
		for k := range storeOpSeries {
			storeKeys = append(storeKeys, k)
		}
		sort.Slice(storeKeys, func(i, j int) bool {
			if storeKeys[i].Store != storeKeys[j].Store {
				return storeKeys[i].Store < storeKeys[j].Store
			}
			return storeKeys[i].Operation < storeKeys[j].Operation
		})
		storeSnapshot := make(map[storeOpMetricKey]storeOpMetricSeries, len(storeKeys))
		for _, k := range storeKeys {
			storeSnapshot[k] = *storeOpSeries[k]
		}

		exKeys := make([]externalMetricKey, 0, len(externalSeries))
		for k := range externalSeries {
			exKeys = append(exKeys, k)
		}
		sort.Slice(exKeys, func(i, j int) bool {
			if exKeys[i].Target != exKeys[j].Target {
				return exKeys[i].Target < exKeys[j].Target
			}
			return exKeys[i].Operation < exKeys[j].Operation
		})
		exSnapshot := make(map[externalMetricKey]externalMetricSeries, len(exKeys))
		for _, k := range exKeys {
			exSnapshot[k] = *externalSeries[k]
		}

		dlKeys := make([]downloadMetricKey, 0, len(downloadSeries))
		for k := range downloadSeries {
			dlKeys = append(dlKeys, k)
		}
		sort.Slice(dlKeys, func(i, j int) bool { return dlKeys[i].Status < dlKeys[j].Status })
		dlSnapshot := make(map[downloadMetricKey]downloadMetricSeries, len(dlKeys))
		for _, k := range dlKeys {
			dlSnapshot[k] = *downloadSeries[k]
		}
		metricsMu.Unlock()

		writeHeader := func(name, kind, help string) {
			_, _ = fmt.Fprintf(w, "# HELP chemviz_ui_%s %s\n", name, help)
			_, _ = fmt.Fprintf(w, "# TYPE chemviz_ui_%s %s\n", name, kind)
		}

		writeHeader("http_requests_total", "counter", "Total HTTP requests handled by this app.")
		for _, k := range httpKeys {
			_, _ = fmt.Fprintf(w, "chemviz_ui_http_requests_total{method=%q,path=%q,status=%q} %d\n",
				escapeLabel(k.Method), escapeLabel(k.Path), escapeLabel(k.Status), httpSnapshot[k].Count)
		}
		writeHeader("http_request_duration_seconds_sum", "counter", "Total duration in seconds for observed requests.")
		for _, k := range httpKeys {
			_, _ = fmt.Fprintf(w, "chemviz_ui_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %.9f\n",
				escapeLabel(k.Method), escapeLabel(k.Path), escapeLabel(k.Status), httpSnapshot[k].DurationSecondsSum)
		}
		writeHeader("http_request_duration_seconds_count", "counter", "Number of observed requests in duration series.")
		for _, k := range httpKeys {
			_, _ = fmt.Fprintf(w, "chemviz_ui_http_request_duration_seconds_count{method=%q,path=%q,status=%q} %d\n",
				escapeLabel(k.Method), escapeLabel(k.Path), escapeLabel(k.Status), httpSnapshot[k].Count)
		}

		writeHeader("http_in_flight_requests", "gauge", "In-flight HTTP requests currently served by this app.")
		_, _ = fmt.Fprintf(w, "chemviz_ui_http_in_flight_requests %d\n", atomic.LoadInt64(&inFlightRequests))

		writeHeader("store_op_duration_seconds_sum", "counter", "Local store operation duration sum in seconds by store/operation.")
		for _, k := range storeKeys {
			_, _ = fmt.Fprintf(w, "chemviz_ui_store_op_duration_seconds_sum{store=%q,operation=%q} %.9f\n",
				escapeLabel(k.Store), escapeLabel(k.Operation), storeSnapshot[k].DurationSecondsSum)
		}
		writeHeader("store_op_duration_seconds_count", "counter", "Local store operation observation count by store/operation.")
		for _, k := range storeKeys {
			_, _ = fmt.Fprintf(w, "chemviz_ui_store_op_duration_seconds_count{store=%q,operation=%q} %d\n",
				escapeLabel(k.Store), escapeLabel(k.Operation), storeSnapshot[k].Count)
		}
		writeHeader("store_op_errors_total", "counter", "Local store operation errors by store/operation.")
		for _, k := range storeKeys {
			_, _ = fmt.Fprintf(w, "chemviz_ui_store_op_errors_total{store=%q,operation=%q} %d\n",
				escapeLabel(k.Store), escapeLabel(k.Operation), storeSnapshot[k].Errors)
		}

		writeHeader("external_probe_duration_seconds_sum", "counter", "External probe duration sum in seconds by target/operation.")
		for _, k := range exKeys {
			_, _ = fmt.Fprintf(w, "chemviz_ui_external_probe_duration_seconds_sum{target=%q,operation=%q} %.9f\n",
				escapeLabel(k.Target), escapeLabel(k.Operation), exSnapshot[k].DurationSecondsSum)
		}
		writeHeader("external_probe_duration_seconds_count", "counter", "External probe observation count by target/operation.")
		for _, k := range exKeys {
			_, _ = fmt.Fprintf(w, "chemviz_ui_external_probe_duration_seconds_count{target=%q,operation=%q} %d\n",
				escapeLabel(k.Target), escapeLabel(k.Operation), exSnapshot[k].Count)
		}
		writeHeader("external_probe_errors_total", "counter", "External probe errors by target/operation.")
		for _, k := range exKeys {
			_, _ = fmt.Fprintf(w, "chemviz_ui_external_probe_errors_total{target=%q,operation=%q} %d\n",
				escapeLabel(k.Target), escapeLabel(k.Operation), exSnapshot[k].Errors)
		}

		writeHeader("report_downloads_total", "counter", "Report download count by status.")
		for _, k := range dlKeys {
			_, _ = fmt.Fprintf(w, "chemviz_ui_report_downloads_total{status=%q} %d\n", escapeLabel(k.Status), dlSnapshot[k].Count)
		}
		writeHeader("report_download_duration_seconds_sum", "counter", "Report download duration sum in seconds by status.")
		for _, k := range dlKeys {
			_, _ = fmt.Fprintf(w, "chemviz_ui_report_download_duration_seconds_sum{status=%q} %.9f\n", escapeLabel(k.Status), dlSnapshot[k].DurationSecondsSum)
		}

		uptime := time.Now().Unix() - appStartedAtUnix
		writeHeader("uptime_seconds", "gauge", "Process uptime in seconds.")
		_, _ = fmt.Fprintf(w, "chemviz_ui_uptime_seconds %d\n", uptime)

		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		writeHeader("runtime_goroutines", "gauge", "Number of goroutines.")
		_, _ = fmt.Fprintf(w, "chemviz_ui_runtime_goroutines %d\n", runtime.NumGoroutine())
		writeHeader("runtime_memory_alloc_bytes", "gauge", "Heap allocation bytes.")
		_, _ = fmt.Fprintf(w, "chemviz_ui_runtime_memory_alloc_bytes %d\n", ms.Alloc)
		writeHeader("runtime_gc_total", "counter", "Total GC runs since process start.")
		_, _ = fmt.Fprintf(w, "chemviz_ui_runtime_gc_total %d\n", ms.NumGC)

		if cpuSec, ok := processCPUSeconds(); ok {
			writeHeader("runtime_cpu_seconds_total", "counter", "Total CPU time consumed by this process in seconds.")
			_, _ = fmt.Fprintf(w, "chemviz_ui_runtime_cpu_seconds_total %.6f\n", cpuSec)
		}
		if io := processIOStats(); io != nil {
			writeHeader("runtime_io_read_bytes_total", "counter", "Bytes read by this process from storage.")
			_, _ = fmt.Fprintf(w, "chemviz_ui_runtime_io_read_bytes_total %d\n", io.ReadBytes)
			writeHeader("runtime_io_write_bytes_total", "counter", "Bytes written by this process to storage.")
			_, _ = fmt.Fprintf(w, "chemviz_ui_runtime_io_write_bytes_total %d\n", io.WriteBytes)
		}
	})
}

func appMetricsSummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type endpointRow struct {
			Method  string  `json:"method"`
			Path    string  `json:"path"`
			Status  string  `json:"status"`
			Count   uint64  `json:"count"`
			AvgMS   float64 `json:"avg_ms"`
			TotalMS float64 `json:"total_ms"`
		}

		metricsMu.Lock()
		httpRows := make([]endpointRow, 0, len(httpSeries))
		for k, s := range httpSeries {
			avg := 0.0
			if s.Count > 0 {
				avg = (s.DurationSecondsSum / float64(s.Count)) * 1000.0
			}
			httpRows = append(httpRows, endpointRow{
				Method:  k.Method,
				Path:    k.Path,
				Status:  k.Status,
				Count:   s.Count,
				AvgMS:   avg,
				TotalMS: s.DurationSecondsSum * 1000.0,
			})
		}

		storeErrors := uint64(0)
		for _, s := range storeOpSeries {
			storeErrors += s.Errors
		}
		backendErrors := uint64(0)
		for _, s := range externalSeries {
			backendErrors += s.Errors
		}
		downloads := uint64(0)
		for _, s := range downloadSeries {
			downloads += s.Count
		}
		metricsMu.Unlock()

		sort.Slice(httpRows, func(i, j int) bool { return httpRows[i].AvgMS > httpRows[j].AvgMS })
		if len(httpRows) > 5 {
			httpRows = httpRows[:5]
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"meta": map[string]any{
				"generated_at": time.Now().UTC(),
			},
			"data": map[string]any{
				"top_http_slowest_avg_ms": httpRows,
				"report_downloads_total":  downloads,
				"errors": map[string]any{
					"store_op_total":       storeErrors,
					"external_probe_total": backendErrors,
				},
			},
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		atomic.AddInt64(&inFlightRequests, 1)
		defer atomic.AddInt64(&inFlightRequests, -1)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := normalizeMetricPath(r)
		sec := time.Since(start).Seconds()
		recordHTTPMetric(r.Method, route, rec.status, sec)
	})
}

// normalizeMetricPath collapses parameterized routes so dataset ids do not
// explode the label space.
func normalizeMetricPath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/reports/"):
		return "/api/v1/reports/{id}"
	case strings.HasPrefix(path, "/api/v1/datasets/") && strings.HasSuffix(path, "/select"):
		return "/api/v1/datasets/{id}/select"
	default:
		return path
	}
}

func recordHTTPMetric(method, path string, status int, durationSeconds float64) {
	key := httpMetricKey{Method: method, Path: path, Status: strconv.Itoa(status)}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	row, ok := httpSeries[key]
	if !ok {
		row = &httpMetricSeries{}
		httpSeries[key] = row
	}
	row.Count++
	row.DurationSecondsSum += durationSeconds
}

func recordStoreOp(store, operation string, durationSeconds float64, err error) {
	if store == "" || operation == "" {
		return
	}
	key := storeOpMetricKey{Store: store, Operation: operation}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	row, ok := storeOpSeries[key]
	if !ok {
		row = &storeOpMetricSeries{}
		storeOpSeries[key] = row
	}
	row.Count++
	row.DurationSecondsSum += durationSeconds
	if err != nil {
		row.Errors++
	}
}

func recordExternalProbe(target, operation string, durationSeconds float64, err error) {
	if target == "" || operation == "" {
		return
	}
	key := externalMetricKey{Target: target, Operation: operation}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	row, ok := externalSeries[key]
	if !ok {
		row = &externalMetricSeries{}
		externalSeries[key] = row
	}
	row.Count++
	row.DurationSecondsSum += durationSeconds
	if err != nil {
		row.Errors++
	}
}

func recordReportDownload(status string, durationSeconds float64) {
	status = strings.TrimSpace(strings.ToLower(status))
	if status == "" {
		status = "unknown"
	}
	key := downloadMetricKey{Status: status}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	row, ok := downloadSeries[key]
	if !ok {
		row = &downloadMetricSeries{}
		downloadSeries[key] = row
	}
	row.Count++
	row.DurationSecondsSum += durationSeconds
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return v
}

func processCPUSeconds() (float64, bool) {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	user := float64(ru.Utime.Sec) + (float64(ru.Utime.Usec) / 1_000_000.0)
	sys := float64(ru.Stime.Sec) + (float64(ru.Stime.Usec) / 1_000_000.0)
	return user + sys, true
}

type ioStats struct {
	ReadBytes  uint64
	WriteBytes uint64
}

func processIOStats() *ioStats {
	b, err := os.ReadFile("/proc/self/io")
	if err != nil {
		return nil
	}
	out := &ioStats{}
	for _, line := range strings.Split(string(b), "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), ":", 2)
		if len(parts) != 2 {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(parts[0]) {
		case "read_bytes":
			out.ReadBytes = v
		case "write_bytes":
			out.WriteBytes = v
		}
	}
	return out
}
