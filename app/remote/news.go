package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/shelf-sync/app/catalog"
)

// NewsClient talks to a Nextcloud News server. Wire formats stay inside
// this client; the synchronizer only sees NewsFeed/NewsItem values.
type NewsClient interface {
	// CheckAvailable reports whether the News app responds on the server.
	CheckAvailable(ctx context.Context, cat *catalog.Config) (bool, error)
	ListFeeds(ctx context.Context, cat *catalog.Config) ([]NewsFeed, error)
	// ListItems returns items for a remote feed, including already-read ones
	// when includeRead is set, so state can be reconciled rather than only
	// new items imported.
	ListItems(ctx context.Context, cat *catalog.Config, remoteFeedID int64, includeRead bool) ([]NewsItem, error)
}

var _ NewsClient = (*NextcloudNewsClient)(nil)

type NextcloudNewsClient struct {
	httpClient  *http.Client
	credentials CredentialStore
	userAgent   string
	timeout     time.Duration
}

func NewNextcloudNewsClient(httpClient *http.Client, credentials CredentialStore, userAgent string, timeout time.Duration) *NextcloudNewsClient {
	return &NextcloudNewsClient{
		httpClient:  httpClient,
		credentials: credentials,
		userAgent:   userAgent,
		timeout:     timeout,
	}
}

func (c *NextcloudNewsClient) CheckAvailable(ctx context.Context, cat *catalog.Config) (bool, error) {
	url := c.apiURL(cat, "status")
	body, status, err := c.do(ctx, cat, url)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, nil
	}

	var payload struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false, nil
	}
	return payload.Version != "", nil
}

func (c *NextcloudNewsClient) ListFeeds(ctx context.Context, cat *catalog.Config) ([]NewsFeed, error) {
	url := c.apiURL(cat, "feeds")
	body, status, err := c.do(ctx, cat, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &FetchError{URL: url, StatusCode: status}
	}

	var payload struct {
		Feeds []struct {
			ID    int64  `json:"id"`
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"feeds"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to decode feeds: %w", err)}
	}

	feeds := make([]NewsFeed, 0, len(payload.Feeds))
	for _, f := range payload.Feeds {
		feeds = append(feeds, NewsFeed{ID: f.ID, URL: f.URL, Title: f.Title})
	}
	return feeds, nil
}

func (c *NextcloudNewsClient) ListItems(ctx context.Context, cat *catalog.Config, remoteFeedID int64, includeRead bool) ([]NewsItem, error) {
	getRead := "false"
	if includeRead {
		getRead = "true"
	}
	url := fmt.Sprintf("%s?batchSize=-1&type=0&id=%d&getRead=%s",
		c.apiURL(cat, "items"), remoteFeedID, getRead)

	body, status, err := c.do(ctx, cat, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &FetchError{URL: url, StatusCode: status}
	}

	var payload struct {
		Items []struct {
			ID      int64  `json:"id"`
			FeedID  int64  `json:"feedId"`
			GUID    string `json:"guid"`
			Title   string `json:"title"`
			Body    string `json:"body"`
			URL     string `json:"url"`
			Unread  bool   `json:"unread"`
			Starred bool   `json:"starred"`
			PubDate int64  `json:"pubDate"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to decode items: %w", err)}
	}

	items := make([]NewsItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		item := NewsItem{
			ID:      it.ID,
			FeedID:  it.FeedID,
			GUID:    it.GUID,
			Title:   it.Title,
			Body:    it.Body,
			URL:     it.URL,
			Unread:  it.Unread,
			Starred: it.Starred,
		}
		if it.PubDate > 0 {
			t := time.Unix(it.PubDate, 0).UTC()
			item.PubDate = &t
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *NextcloudNewsClient) apiURL(cat *catalog.Config, endpoint string) string {
	return fmt.Sprintf("%s/index.php/apps/news/api/v1-2/%s",
		strings.TrimSuffix(cat.URL, "/"), endpoint)
}

func (c *NextcloudNewsClient) do(ctx context.Context, cat *catalog.Config, url string) ([]byte, int, error) {
	secret, ok := c.credentials.Get(CredentialKey(cat.ID))
	if !ok {
		return nil, 0, ErrNoCredentials
	}

	username, password, found := strings.Cut(secret, ":")
	if !found {
		return nil, 0, fmt.Errorf("malformed credentials for catalog %s", cat.ID)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, 0, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.SetBasicAuth(username, password)

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
