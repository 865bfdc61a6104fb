package remote

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"
)

// FeedClient fetches and parses a catalog or feed URL. OPDS catalogs are
// Atom documents, so the same parser covers RSS, Atom, and OPDS payloads.
type FeedClient interface {
	FetchFeed(ctx context.Context, url string) (*Feed, error)
}

var _ FeedClient = (*HTTPFeedClient)(nil)

type HTTPFeedClient struct {
	httpClient   *http.Client
	gofeedParser *gofeed.Parser
	userAgent    string
	timeout      time.Duration
}

func NewHTTPFeedClient(httpClient *http.Client, userAgent string, timeout time.Duration) *HTTPFeedClient {
	return &HTTPFeedClient{
		httpClient:   httpClient,
		gofeedParser: gofeed.NewParser(),
		userAgent:    userAgent,
		timeout:      timeout,
	}
}

func (c *HTTPFeedClient) FetchFeed(ctx context.Context, url string) (*Feed, error) {
	data, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	parsed, err := c.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to parse feed: %w", err)}
	}

	feed := &Feed{
		Metadata: Metadata{
			Title:       norm.NFC.String(parsed.Title),
			Link:        parsed.Link,
			Description: parsed.Description,
			Language:    parsed.Language,
		},
	}
	if parsed.PublishedParsed != nil {
		feed.Metadata.PublishedAt = parsed.PublishedParsed
	}

	feed.Items = make([]Item, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		feed.Items = append(feed.Items, normalizeItem(item))
	}

	return feed, nil
}

func (c *HTTPFeedClient) fetch(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return data, nil
}

func normalizeItem(item *gofeed.Item) Item {
	normalized := Item{
		GUID:        cmp.Or(item.GUID, item.Link),
		Title:       norm.NFC.String(item.Title),
		Link:        item.Link,
		Description: item.Description,
		Content:     item.Content,
	}

	if item.PublishedParsed != nil {
		normalized.PublishedAt = item.PublishedParsed
	}

	if item.Categories != nil {
		normalized.Categories = item.Categories
	}

	// Extract first enclosure if available (RSS 2.0 spec allows only one per item)
	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
		enclosure := item.Enclosures[0]
		normalized.EnclosureURL = enclosure.URL
		normalized.EnclosureType = enclosure.Type

		if enclosure.Length != "" {
			if length, err := strconv.ParseInt(enclosure.Length, 10, 64); err == nil {
				normalized.EnclosureLength = length
			}
		}
	}

	return normalized
}
