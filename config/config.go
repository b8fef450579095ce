package config

// Config represents the core realtime service configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Match    MatchConfig    `mapstructure:"match"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Sweeps   SweepsConfig   `mapstructure:"sweeps"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP/WebSocket server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	WSSecret       string   `mapstructure:"ws_secret"`   // HMAC secret for bearer token validation
	MaxClients     int      `mapstructure:"max_clients"` // Concurrent WebSocket connection limit
}

// BrokerConfig configures the NATS event bus connection
type BrokerConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"` // Single subject carrying all domain events
}

// MatchConfig configures the compatibility scoring engine and recommendation cache
type MatchConfig struct {
	RadiusKm        float64 `mapstructure:"radius_km"`         // Proximity hard cutoff (default: 80)
	HorizonDays     int     `mapstructure:"horizon_days"`      // Time-relevance decay horizon (default: 14)
	MinScore        float64 `mapstructure:"min_score"`         // Matches below this are dropped (default: 30)
	MaxResults      int     `mapstructure:"max_results"`       // Hard cap on returned matches (default: 20)
	CacheTTLMinutes int     `mapstructure:"cache_ttl_minutes"` // Recommendation cache entry lifetime (default: 15)
	CacheMaxEntries int     `mapstructure:"cache_max_entries"` // Entries beyond this are evicted oldest-first (default: 10000)
}

// JobsConfig configures the durable job queue and worker pools
type JobsConfig struct {
	Workers             map[string]int `mapstructure:"workers"`               // Per-queue worker counts
	PollIntervalSeconds int            `mapstructure:"poll_interval_seconds"` // How often workers check for due jobs (default: 2)
	MaxAttempts         int            `mapstructure:"max_attempts"`          // Attempts before a job is terminally failed (default: 3)
	BackoffBaseSeconds  int            `mapstructure:"backoff_base_seconds"`  // First retry delay, doubled per attempt (default: 30)
	NotifyRatePerSecond float64        `mapstructure:"notify_rate_per_second"` // Delivery rate gate for the notifications queue (0 = unlimited)
}

// SweepsConfig configures the scheduled sweep drivers
type SweepsConfig struct {
	ReminderIntervalMinutes int `mapstructure:"reminder_interval_minutes"` // Reminder sweep cadence (default: 60)
	CleanupHourUTC          int `mapstructure:"cleanup_hour_utc"`          // Daily cleanup sweep hour (default: 4)
	DigestWeekday           int `mapstructure:"digest_weekday"`            // Weekly digest day, 0=Sunday (default: 1)
	DigestSpreadMinutes     int `mapstructure:"digest_spread_minutes"`     // Digest jobs spread over this window (default: 120)
}

// Default server port (above privileged range, easy to type)
const DefaultServerPort = 8480
