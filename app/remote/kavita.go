package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/shelf-sync/app/catalog"
)

var _ ProgressSyncCapable = (*KavitaClient)(nil)

// KavitaClient reads and writes reading progress against a Kavita server's
// reader API using the stored API token.
type KavitaClient struct {
	httpClient  *http.Client
	credentials CredentialStore
	userAgent   string
	timeout     time.Duration
}

func NewKavitaClient(httpClient *http.Client, credentials CredentialStore, userAgent string, timeout time.Duration) *KavitaClient {
	return &KavitaClient{
		httpClient:  httpClient,
		credentials: credentials,
		userAgent:   userAgent,
		timeout:     timeout,
	}
}

type kavitaProgress struct {
	Percentage float64 `json:"percentage"`
	Location   string  `json:"location,omitempty"`
	UpdatedUTC string  `json:"lastModifiedUtc,omitempty"`
}

func (c *KavitaClient) FetchProgress(ctx context.Context, cat *catalog.Config, remoteBookID string) (*RemoteProgress, error) {
	url := c.progressURL(cat, remoteBookID)

	body, status, err := c.do(ctx, cat, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, &FetchError{URL: url, StatusCode: status}
	}

	var payload kavitaProgress
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to decode progress: %w", err)}
	}

	progress := &RemoteProgress{
		Percentage: payload.Percentage,
		CFI:        payload.Location,
	}
	if payload.UpdatedUTC != "" {
		if t, err := time.Parse(time.RFC3339, payload.UpdatedUTC); err == nil {
			progress.UpdatedAt = &t
		}
	}
	return progress, nil
}

func (c *KavitaClient) SyncProgress(ctx context.Context, cat *catalog.Config, remoteBookID string, percentage float64, cfi string) error {
	url := c.progressURL(cat, remoteBookID)

	payload, err := json.Marshal(kavitaProgress{Percentage: percentage, Location: cfi})
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	_, status, err := c.do(ctx, cat, "POST", url, payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return &FetchError{URL: url, StatusCode: status}
	}
	return nil
}

func (c *KavitaClient) progressURL(cat *catalog.Config, remoteBookID string) string {
	return fmt.Sprintf("%s/api/reader/progress/%s", strings.TrimSuffix(cat.URL, "/"), remoteBookID)
}

func (c *KavitaClient) do(ctx context.Context, cat *catalog.Config, method, url string, payload []byte) ([]byte, int, error) {
	token, ok := c.credentials.Get(CredentialKey(cat.ID))
	if !ok {
		return nil, 0, ErrNoCredentials
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(timeoutCtx, method, url, body)
	if err != nil {
		return nil, 0, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &FetchError{URL: url, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return data, resp.StatusCode, nil
}
