package remote

import (
	"errors"
	"fmt"
)

// FetchError is a typed network or parse failure from a remote call. The
// queue treats these as transient and retries them.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrNoCredentials is returned when a catalog requires stored credentials
// and none are present.
var ErrNoCredentials = errors.New("no credentials stored for catalog")
