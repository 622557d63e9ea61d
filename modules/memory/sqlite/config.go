package sqlite

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "events.db"
)

var synchronousModes = []string{"OFF", "NORMAL", "FULL", "EXTRA"}

// Config configures the event store database.
type Config struct {
	// Path is the events database file. Relative paths resolve against
	// the data directory; empty means {DataDir}/events.db.
	Path string `yaml:"path"`

	// WAL lets retrieval read while backfill writes. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is how long, in milliseconds, a writer waits for the
	// lock held by another connection.
	BusyTimeout int `yaml:"busy_timeout"`

	// Synchronous is the PRAGMA synchronous level. NORMAL under WAL,
	// FULL otherwise.
	Synchronous string `yaml:"synchronous"`

	// CacheSizeKB caps the page cache. Zero keeps SQLite's default.
	CacheSizeKB int `yaml:"cache_size_kb"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	c.Synchronous = strings.ToUpper(strings.TrimSpace(c.Synchronous))
	if c.Synchronous == "" {
		c.Synchronous = "FULL"
		if c.walEnabled() {
			c.Synchronous = "NORMAL"
		}
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

// resolvePath anchors Path under dataDir.
func (c *Config) resolvePath(dataDir string) {
	switch {
	case c.Path == "":
		c.Path = filepath.Join(dataDir, defaultDBFile)
	case !filepath.IsAbs(c.Path) && dataDir != "":
		c.Path = filepath.Join(dataDir, c.Path)
	}
}

// pragmas lists the statements open runs on the single pooled connection.
func (c *Config) pragmas() []string {
	var out []string
	if c.walEnabled() {
		out = append(out, "PRAGMA journal_mode=WAL")
	}
	out = append(out,
		fmt.Sprintf("PRAGMA busy_timeout=%d", c.BusyTimeout),
		"PRAGMA synchronous="+c.Synchronous,
	)
	if c.CacheSizeKB > 0 {
		// Negative cache_size is in KiB rather than pages.
		out = append(out, fmt.Sprintf("PRAGMA cache_size=-%d", c.CacheSizeKB))
	}
	return out
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	if c.CacheSizeKB < 0 {
		return fmt.Errorf("sqlite: cache_size_kb must be non-negative, got %d", c.CacheSizeKB)
	}
	if c.Synchronous != "" && !slices.Contains(synchronousModes, strings.ToUpper(c.Synchronous)) {
		return fmt.Errorf("sqlite: synchronous must be one of %s, got %q",
			strings.Join(synchronousModes, ", "), c.Synchronous)
	}
	return nil
}
