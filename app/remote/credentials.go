package remote

import (
	"os"
	"strings"
	"sync"
)

// CredentialStore hands out stored secrets by key. Secret contents are
// opaque to the sync core; clients interpret them (e.g. "user:password"
// for basic auth, a bare token for Kavita).
type CredentialStore interface {
	Get(key string) (string, bool)
}

// CredentialKey is the store key convention for a catalog's secret.
func CredentialKey(catalogID string) string {
	return "catalog:" + catalogID
}

// EnvCredentialStore resolves secrets from environment variables:
// "catalog:my-server" becomes SHELF_SYNC_CREDENTIAL_CATALOG_MY_SERVER.
type EnvCredentialStore struct{}

var _ CredentialStore = EnvCredentialStore{}

func (EnvCredentialStore) Get(key string) (string, bool) {
	name := "SHELF_SYNC_CREDENTIAL_" + sanitizeEnvKey(key)
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func sanitizeEnvKey(key string) string {
	upper := strings.ToUpper(key)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, upper)
}

// StaticCredentialStore is an in-memory store for tests and embedding.
type StaticCredentialStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

var _ CredentialStore = (*StaticCredentialStore)(nil)

func NewStaticCredentialStore(secrets map[string]string) *StaticCredentialStore {
	copied := make(map[string]string, len(secrets))
	for k, v := range secrets {
		copied[k] = v
	}
	return &StaticCredentialStore{secrets: copied}
}

func (s *StaticCredentialStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.secrets[key]
	return value, ok && value != ""
}

func (s *StaticCredentialStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[key] = value
}
