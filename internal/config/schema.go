// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for campuswatch.
package config

// Config is the top-level configuration structure. It is constructed
// once at startup and passed by reference into every component
// constructor; there is no global configuration state.
type Config struct {
	Telegram  Telegram  `yaml:"telegram"`
	Intra     Intra     `yaml:"intra"`
	Cache     Cache     `yaml:"cache"`
	Database  Database  `yaml:"database"`
	Observer  Observer  `yaml:"observer"`
	Events    Events    `yaml:"events"`
	Catalog   Catalog   `yaml:"catalog"`
	Gateway   Gateway   `yaml:"gateway"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Telegram holds Bot API settings.
type Telegram struct {
	Token string `yaml:"token"`
	// APIURL overrides the public Bot API endpoint (testing).
	APIURL string `yaml:"api_url,omitempty"`
}

// Application is one registered OAuth client-credential identity.
type Application struct {
	UID    string `yaml:"uid"`
	Secret string `yaml:"secret"`
}

// Intra holds upstream API settings.
type Intra struct {
	BaseURL string `yaml:"base_url,omitempty"`
	AuthURL string `yaml:"auth_url,omitempty"`
	// RedirectURL is the OAuth authorization-code callback URL.
	RedirectURL  string        `yaml:"redirect_url,omitempty"`
	Applications []Application `yaml:"applications"`
	// RateLimit caps aggregate upstream calls/second across all credentials.
	RateLimit float64 `yaml:"rate_limit"`
	// RequestTimeoutSeconds is the per-call hard budget.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// Cache selects and configures the cache backend.
type Cache struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`
	Redis   Redis  `yaml:"redis,omitempty"`
}

// Redis holds connection settings for the redis cache backend.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Database holds the SQLite store location.
type Database struct {
	Path string `yaml:"path"`
}

// Observer holds observation loop settings.
type Observer struct {
	PageSize     int `yaml:"page_size"`
	CycleSeconds int `yaml:"cycle_seconds"`
	SendDelayMS  int `yaml:"send_delay_ms"`
}

// Events holds event notifier settings.
type Events struct {
	PageSize            int `yaml:"page_size"`
	CycleSeconds        int `yaml:"cycle_seconds"`
	SafetyMarginSeconds int `yaml:"safety_margin_seconds"`
}

// Catalog holds campus catalog sync settings.
type Catalog struct {
	// Schedule is a 5-field cron expression.
	Schedule string `yaml:"schedule,omitempty"`
}

// Gateway holds the HTTP listener settings (health, metrics, OAuth callback).
type Gateway struct {
	Listen string `yaml:"listen"`
}

// Telemetry holds trace export settings.
type Telemetry struct {
	Enabled bool `yaml:"enabled"`
	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string `yaml:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

// Defaults fills unset fields with production defaults.
func (c *Config) Defaults() {
	if c.Intra.RateLimit <= 0 {
		c.Intra.RateLimit = 20
	}
	if c.Intra.RequestTimeoutSeconds <= 0 {
		c.Intra.RequestTimeoutSeconds = 60
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Database.Path == "" {
		c.Database.Path = "campuswatch.db"
	}
	if c.Observer.PageSize <= 0 {
		c.Observer.PageSize = 100
	}
	if c.Observer.CycleSeconds <= 0 {
		c.Observer.CycleSeconds = 600
	}
	if c.Observer.SendDelayMS <= 0 {
		c.Observer.SendDelayMS = 50
	}
	if c.Events.PageSize <= 0 {
		c.Events.PageSize = 10
	}
	if c.Events.CycleSeconds <= 0 {
		c.Events.CycleSeconds = 1800
	}
	if c.Events.SafetyMarginSeconds <= 0 {
		c.Events.SafetyMarginSeconds = 300
	}
	if c.Gateway.Listen == "" {
		c.Gateway.Listen = ":8080"
	}
}
