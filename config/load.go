package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teemates/realtime/errors"
)

// Load reads the service configuration using Viper.
// Precedence (lowest to highest): defaults < config file < TEEMATES_* env vars.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("TEEMATES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	v.SetConfigName("teemates")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/teemates")

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults and env vars apply
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", configPath)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers default values for every configuration key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "teemates.db")

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.max_clients", 1000)

	v.SetDefault("broker.url", "nats://localhost:4222")
	v.SetDefault("broker.subject", "teemates.events")

	v.SetDefault("match.radius_km", 80.0)
	v.SetDefault("match.horizon_days", 14)
	v.SetDefault("match.min_score", 30.0)
	v.SetDefault("match.max_results", 20)
	v.SetDefault("match.cache_ttl_minutes", 15)
	v.SetDefault("match.cache_max_entries", 10000)

	v.SetDefault("jobs.workers", map[string]int{
		"notifications": 4,
		"matching":      2,
		"reminders":     2,
		"cleanup":       1,
	})
	v.SetDefault("jobs.poll_interval_seconds", 2)
	v.SetDefault("jobs.max_attempts", 3)
	v.SetDefault("jobs.backoff_base_seconds", 30)
	v.SetDefault("jobs.notify_rate_per_second", 0.0)

	v.SetDefault("sweeps.reminder_interval_minutes", 60)
	v.SetDefault("sweeps.cleanup_hour_utc", 4)
	v.SetDefault("sweeps.digest_weekday", 1)
	v.SetDefault("sweeps.digest_spread_minutes", 120)
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("invalid server port: %d", c.Server.Port)
	}
	if c.Broker.Subject == "" {
		return errors.New("broker subject must not be empty")
	}
	if c.Match.RadiusKm <= 0 {
		return errors.Newf("match radius must be positive, got %f", c.Match.RadiusKm)
	}
	if c.Match.HorizonDays <= 0 {
		return errors.Newf("match horizon must be positive, got %d", c.Match.HorizonDays)
	}
	if c.Jobs.MaxAttempts < 1 {
		return errors.Newf("jobs max_attempts must be at least 1, got %d", c.Jobs.MaxAttempts)
	}
	if c.Sweeps.CleanupHourUTC < 0 || c.Sweeps.CleanupHourUTC > 23 {
		return errors.Newf("cleanup hour must be 0-23, got %d", c.Sweeps.CleanupHourUTC)
	}
	if c.Sweeps.DigestWeekday < 0 || c.Sweeps.DigestWeekday > 6 {
		return errors.Newf("digest weekday must be 0-6, got %d", c.Sweeps.DigestWeekday)
	}
	return nil
}

// PollInterval returns the worker poll interval as a duration
func (c *JobsConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// BackoffBase returns the base retry delay as a duration
func (c *JobsConfig) BackoffBase() time.Duration {
	if c.BackoffBaseSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// CacheTTL returns the recommendation cache TTL as a duration
func (c *MatchConfig) CacheTTL() time.Duration {
	if c.CacheTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}
