package catalog

// Type is the kind of remote system a catalog talks to. Capability dispatch
// (progress sync, news sync) is keyed on this tag, never on identifier
// substrings.
type Type string

const (
	TypeOPDS      Type = "opds"
	TypeKavita    Type = "kavita"
	TypeNextcloud Type = "nextcloud"
	TypeRSS       Type = "rss"
)

// ParseType converts a configuration string into a known catalog Type.
func ParseType(value string) (Type, bool) {
	switch Type(value) {
	case TypeOPDS, TypeKavita, TypeNextcloud, TypeRSS:
		return Type(value), true
	}
	return "", false
}

type Config struct {
	ID       string   `yaml:"-"` // Derived from filename (without .yml extension)
	URL      string   `yaml:"url"`
	Type     Type     `yaml:"type"`
	Settings Settings `yaml:"settings"`
}

type Settings struct {
	Enabled         bool `yaml:"enabled"`
	RefreshInterval int  `yaml:"refresh_interval"` // seconds
	Timeout         int  `yaml:"timeout"`          // seconds
	KeepItems       int  `yaml:"keep_items"`       // items retained per feed
	SyncProgress    bool `yaml:"sync_progress"`
	NewsSync        bool `yaml:"news_sync"`
}
