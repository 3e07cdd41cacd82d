package chemstats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go-chemviz-dashboard-ui/internal/dataset"
)

const errorBodyLimit = 2048

// Client talks to the remote ChemViz statistics backend. Every request made
// with a non-empty token carries it as a bearer authorization header;
// requests issued before any credential exists go out unauthenticated.
type Client struct {
	baseURL      string
	http         *http.Client
	retryMax     int
	retryBackoff time.Duration
}

// NewClient builds a backend client. retryMax applies to idempotent GETs
// only; mutating requests are never retried.
func NewClient(baseURL string, timeout time.Duration, retryMax int, retryBackoff time.Duration) *Client {
	if retryMax < 0 {
		retryMax = 0
	}
	return &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:         &http.Client{Timeout: timeout},
		retryMax:     retryMax,
		retryBackoff: retryBackoff,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a bearer token via POST /api/token/.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}

	resp, err := c.send(ctx, http.MethodPost, "/api/token/", "", "application/json", bytes.NewReader(body), false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", &AuthError{Message: authMessage(resp.Body, "invalid username or password")}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", unexpectedStatus(resp)
	}

	var payload struct {
		Access string `json:"access"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.Access) == "" {
		return "", fmt.Errorf("chemstats: token response missing access field")
	}
	return payload.Access, nil
}

// Register creates an account via POST /api/register/. No token is issued;
// the caller logs in afterwards.
func (c *Client) Register(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, http.MethodPost, "/api/register/", "", "application/json", bytes.NewReader(body), false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &AuthError{Message: authMessage(resp.Body, "registration failed")}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unexpectedStatus(resp)
	}
	return nil
}

// ListHistory fetches the ordered upload history, newest first.
func (c *Client) ListHistory(ctx context.Context, token string) ([]dataset.Dataset, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/stats/", token, "", nil, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, unexpectedStatus(resp)
	}

	var items []dataset.Dataset
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}

// UploadDataset posts a CSV as multipart field "file" and returns the newly
// created dataset with its statistics. Callers must not pass empty bytes.
func (c *Client) UploadDataset(ctx context.Context, token, filename string, file []byte) (dataset.Dataset, error) {
	if len(file) == 0 {
		return dataset.Dataset{}, &UploadError{Message: "empty file selection"}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return dataset.Dataset{}, err
	}
	if _, err := part.Write(file); err != nil {
		return dataset.Dataset{}, err
	}
	if err := mw.Close(); err != nil {
		return dataset.Dataset{}, err
	}

	resp, err := c.send(ctx, http.MethodPost, "/api/stats/", token, mw.FormDataContentType(), &buf, false)
	if err != nil {
		return dataset.Dataset{}, &UploadError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return dataset.Dataset{}, ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dataset.Dataset{}, &UploadError{Message: responseMessage(resp.Body, "server rejected the file")}
	}

	var item dataset.Dataset
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return dataset.Dataset{}, &UploadError{Message: "unreadable upload response"}
	}
	return item, nil
}

// FetchReport downloads the generated PDF for a dataset.
func (c *Client) FetchReport(ctx context.Context, token string, id int64) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, fmt.Sprintf("/api/report/%d/", id), token, "", nil, true)
	if err != nil {
		return nil, &ReportError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ReportError{Status: resp.StatusCode, Message: responseMessage(resp.Body, "report generation failed")}
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ReportError{Status: resp.StatusCode, Message: err.Error()}
	}
	return blob, nil
}

// ServiceStats reports backend reachability for the services status view.
type ServiceStats struct {
	PingMS int64  `json:"ping_ms"`
	Status int    `json:"status"`
	Origin string `json:"origin"`
}

// Probe measures reachability of the backend origin.
func (c *Client) Probe(ctx context.Context) (*ServiceStats, error) {
	if !c.Enabled() {
		return nil, nil
	}

	start := time.Now()
	resp, err := c.send(ctx, http.MethodGet, "/api/stats/", "", "", nil, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))

	return &ServiceStats{
		PingMS: time.Since(start).Milliseconds(),
		Status: resp.StatusCode,
		Origin: c.baseURL,
	}, nil
}

// send issues one request, retrying transport failures when the operation
// is marked idempotent.
func (c *Client) send(ctx context.Context, method, path, token, contentType string, body io.Reader, idempotent bool) (*http.Response, error) {
	var payload []byte
	if body != nil {
		blob, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		payload = blob
	}

	attempts := 1
	if idempotent {
		attempts += c.retryMax
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.retryBackoff):
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if strings.TrimSpace(token) != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if idempotent && resp.StatusCode >= 500 && attempt < attempts-1 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("chemstats: backend status=%d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// authMessage extracts a display message from a 4xx auth response. The
// backend emits either {"detail": "..."} or {"username": ["..."]}.
func authMessage(r io.Reader, fallback string) string {
	blob, err := io.ReadAll(io.LimitReader(r, errorBodyLimit))
	if err != nil {
		return fallback
	}

	var payload struct {
		Detail   string   `json:"detail"`
		Username []string `json:"username"`
	}
	if err := json.Unmarshal(blob, &payload); err != nil {
		return fallback
	}
	if msg := strings.TrimSpace(payload.Detail); msg != "" {
		return msg
	}
	if len(payload.Username) > 0 && strings.TrimSpace(payload.Username[0]) != "" {
		return strings.TrimSpace(payload.Username[0])
	}
	return fallback
}

// responseMessage extracts {"error": "..."} or {"detail": "..."} bodies.
func responseMessage(r io.Reader, fallback string) string {
	blob, err := io.ReadAll(io.LimitReader(r, errorBodyLimit))
	if err != nil {
		return fallback
	}

	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(blob, &payload); err != nil {
		return fallback
	}
	if msg := strings.TrimSpace(payload.Error); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(payload.Detail); msg != "" {
		return msg
	}
	return fallback
}

func unexpectedStatus(resp *http.Response) error {
	blob, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return fmt.Errorf("chemstats: backend status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(blob)))
}
