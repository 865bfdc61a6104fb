package remote

import (
	"time"
)

// Feed is a parsed catalog or feed payload. The sync core only inspects the
// item list and its identifiers; everything else is carried through.
type Feed struct {
	Metadata Metadata `json:"metadata"`
	Items    []Item   `json:"items"`
}

type Metadata struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Description string     `json:"description"`
	Language    string     `json:"language"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

type Item struct {
	GUID        string     `json:"guid"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Description string     `json:"description"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Categories  []string   `json:"categories,omitempty"`

	EnclosureURL    string `json:"enclosure_url,omitempty"`
	EnclosureLength int64  `json:"enclosure_length,omitempty"`
	EnclosureType   string `json:"enclosure_type,omitempty"`
}

// RemoteProgress is an immutable snapshot of reading state reported by a
// progress-capable server. It is never persisted directly; values reach the
// local store only through the merge path.
type RemoteProgress struct {
	Percentage float64
	CFI        string
	UpdatedAt  *time.Time
}

// NewsFeed is a feed as reported by a Nextcloud News server.
type NewsFeed struct {
	ID    int64
	URL   string
	Title string
}

// NewsItem is an item as reported by a Nextcloud News server. Unread and
// Starred reflect the server's authoritative state.
type NewsItem struct {
	ID      int64
	FeedID  int64
	GUID    string
	Title   string
	Body    string
	URL     string
	Unread  bool
	Starred bool
	PubDate *time.Time
}
