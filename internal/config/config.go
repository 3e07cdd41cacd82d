package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration for the dashboard UI service.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	BackendBaseURL      string
	BackendTimeout      time.Duration
	BackendRetryMax     int
	BackendRetryBackoff time.Duration

	UploadMaxBytes   int64
	UploadExtensions []string
	PreviewRows      int

	PrefsSQLitePath string
	ActivityLimit   int
}

// FromEnv loads configuration from environment variables with sensible defaults.
func FromEnv() Config {
	loadConfigDefaultsFromFile()

	return Config{
		ListenAddr:   getEnv("APP_LISTEN_ADDR", ":8080"),
		ReadTimeout:  time.Duration(getEnvInt("APP_READ_TIMEOUT_SEC", 10)) * time.Second,
		WriteTimeout: time.Duration(getEnvInt("APP_WRITE_TIMEOUT_SEC", 30)) * time.Second,

		BackendBaseURL:      getEnv("APP_BACKEND_URL", "http://127.0.0.1:8000"),
		BackendTimeout:      time.Duration(getEnvInt("APP_BACKEND_TIMEOUT_SEC", 15)) * time.Second,
		BackendRetryMax:     getEnvInt("APP_BACKEND_RETRY_MAX", 2),
		BackendRetryBackoff: time.Duration(getEnvInt("APP_BACKEND_RETRY_BACKOFF_MS", 250)) * time.Millisecond,

		UploadMaxBytes:   int64(getEnvInt("APP_UPLOAD_MAX_MB", 10)) * 1024 * 1024,
		UploadExtensions: getEnvList("APP_UPLOAD_EXTENSIONS", []string{".csv"}),
		PreviewRows:      getEnvInt("APP_PREVIEW_ROWS", 10),

		PrefsSQLitePath: getEnv("APP_PREFS_SQLITE_PATH", ""),
		ActivityLimit:   getEnvInt("APP_ACTIVITY_LIMIT", 50),
	}
}

// loadConfigDefaultsFromFile layers env-file values under real environment
// variables: a value already present in the environment always wins.
func loadConfigDefaultsFromFile() {
	candidates := make([]string, 0, 4)
	if explicit := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); explicit != "" {
		candidates = append(candidates, explicit)
	}
	candidates = append(candidates,
		"./chemviz-ui.env",
		"/etc/chemviz-ui/config.env",
		"/etc/default/chemviz-ui",
	)

	for _, candidate := range candidates {
		abs := candidate
		if !filepath.IsAbs(candidate) {
			if wd, err := os.Getwd(); err == nil {
				abs = filepath.Join(wd, candidate)
			}
		}
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err == nil {
			return
		}
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvList(key string, def []string) []string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		val = strings.Join(def, ",")
	}

	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, ".") {
			p = "." + p
		}
		out = append(out, p)
	}
	return out
}

// AllowsExtension reports whether the given filename carries one of the
// configured upload extensions.
func (c Config) AllowsExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	for _, allowed := range c.UploadExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
