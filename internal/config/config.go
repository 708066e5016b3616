// Package config loads runtime settings for the Trace client from defaults,
// an optional JSON file and command-line flags, in that order of precedence.
package config

import "time"

// Config holds runtime settings for the Trace client core.
type Config struct {
	// DataDir is where the local SQLite database and the attachment cache
	// live.
	DataDir string

	// ServerEndpointAddr is the base URL of the sync backend.
	ServerEndpointAddr string

	// DeviceID overrides the stored device identity (mainly for tests and
	// simulators). Empty means: use or generate the persisted one.
	DeviceID string

	// AttachmentQuality is the JPEG quality (1-100) applied when staging
	// captured photos.
	AttachmentQuality int

	// AutosaveDebounce is how long the draft must stay unchanged before an
	// autosave flush fires.
	AutosaveDebounce time.Duration

	// AutosaveMaxWait caps how long continuous typing can postpone a flush.
	AutosaveMaxWait time.Duration

	// ConflictGraceWindow is how recently this device must have saved for an
	// external overwrite to be escalated from a toast to a blocking alert.
	ConflictGraceWindow time.Duration

	// SyncInterval is how often the background sync channel runs.
	SyncInterval time.Duration

	// OnlineCheckInterval is how often the client probes server reachability.
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = "."
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.AttachmentQuality = 80
	c.AutosaveDebounce = 2 * time.Second
	c.AutosaveMaxWait = 30 * time.Second
	c.ConflictGraceWindow = 30 * time.Second
	c.SyncInterval = 15 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
