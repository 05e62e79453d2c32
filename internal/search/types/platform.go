package types

import "time"

// PlatformCode identifies a marketplace.
type PlatformCode string

const (
	PlatformRakuten PlatformCode = "rakuten"
	PlatformYahoo   PlatformCode = "yahoo"
	PlatformMercari PlatformCode = "mercari"
)

// PlatformInfo is the static capability descriptor an adapter exposes.
type PlatformInfo struct {
	Code       PlatformCode  `json:"code"`
	Name       string        `json:"name"`
	Kinds      []SearchKind  `json:"kinds"`
	Regions    []string      `json:"regions"`
	RateLimit  float64       `json:"rate_limit"` // requests per second, 0 = unlimited
	Burst      int           `json:"burst"`
	Timeout    time.Duration `json:"timeout"`
	NewOnly    bool          `json:"new_only"` // marketplace only sells new goods
	Scraped    bool          `json:"scraped"`  // backed by a headless browser
	SupportJAN bool          `json:"support_jan"`
}

// Supports reports whether the platform accepts the given search kind.
func (p PlatformInfo) Supports(kind SearchKind) bool {
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// HealthStatus is returned by Adapter.HealthCheck.
type HealthStatus struct {
	Platform  PlatformCode  `json:"platform"`
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// PlatformConfig is the per-platform section of the configuration file.
type PlatformConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Name        string   `mapstructure:"name"`
	APIHost     string   `mapstructure:"api_host"`
	APIKey      string   `mapstructure:"api_key"` // comma separated keys rotate per request
	AffiliateID string   `mapstructure:"affiliate_id"`
	Timeout     int      `mapstructure:"timeout"` // seconds
	MaxRetries  int      `mapstructure:"max_retries"`
	RateLimit   float64  `mapstructure:"rate_limit"` // requests per second
	Burst       int      `mapstructure:"burst"`
	Regions     []string `mapstructure:"regions"`

	// headless browser settings, only used by scraped platforms
	BrowserBin string `mapstructure:"browser_bin"`
	Headless   bool   `mapstructure:"headless"`
}

// Validate checks the fields every platform needs. Credential checks are
// done by the platform constructor because not every platform needs a key.
func (c *PlatformConfig) Validate() error {
	if c.Name == "" {
		return ErrInvalidPlatformName
	}
	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

// TimeoutOr returns the configured timeout or def when unset.
func (c *PlatformConfig) TimeoutOr(def time.Duration) time.Duration {
	if c.Timeout <= 0 {
		return def
	}
	return time.Duration(c.Timeout) * time.Second
}
