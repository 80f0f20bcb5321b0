package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig      `yaml:"store" mapstructure:"store"`
	Shodan   ShodanConfig     `yaml:"shodan" mapstructure:"shodan"`
	Geocode  GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Sweep    SweepConfig      `yaml:"sweep" mapstructure:"sweep"`
	Circuit  CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Delivery DeliveryConfig   `yaml:"delivery" mapstructure:"delivery"`
	Server   ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch    BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Monitor  MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log      LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ShodanConfig holds device-search API settings.
type ShodanConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GeocodeConfig configures postal-code resolution.
type GeocodeConfig struct {
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	NominatimURL string  `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	GoogleKey    string  `yaml:"google_key" mapstructure:"google_key"`
	Country      string  `yaml:"country" mapstructure:"country"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CacheTTLDays int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// CacheTTL returns the postal cache lifetime.
func (g GeocodeConfig) CacheTTL() time.Duration {
	return time.Duration(g.CacheTTLDays) * 24 * time.Hour
}

// SweepConfig configures the sweep pipeline.
type SweepConfig struct {
	PacingMs int    `yaml:"pacing_ms" mapstructure:"pacing_ms"`
	MapDir   string `yaml:"map_dir" mapstructure:"map_dir"`
}

// Pacing returns the delay between successive queries of one sweep.
func (s SweepConfig) Pacing() time.Duration {
	return time.Duration(s.PacingMs) * time.Millisecond
}

// CircuitConfig configures the search backend circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// DeliveryConfig configures where sweep reports are sent. Empty targets are
// disabled.
type DeliveryConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	FTPURL     string `yaml:"ftp_url" mapstructure:"ftp_url"`
	Retries    int    `yaml:"retries" mapstructure:"retries"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentSweeps int `yaml:"max_concurrent_sweeps" mapstructure:"max_concurrent_sweeps"`
}

// MonitoringConfig configures sweep health alerts. Alerts are only sent
// when WebhookURL is set.
type MonitoringConfig struct {
	Enabled               bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	NotFoundRateThreshold float64 `yaml:"not_found_rate_threshold" mapstructure:"not_found_rate_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CAMRECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "camrecon.db")
	v.SetDefault("shodan.key", "")
	v.SetDefault("shodan.base_url", "https://api.shodan.io")
	v.SetDefault("shodan.rate_per_sec", 1.0)
	v.SetDefault("shodan.timeout_secs", 30)
	v.SetDefault("geocode.user_agent", "camera-recon")
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.google_key", "")
	v.SetDefault("geocode.country", "US")
	v.SetDefault("geocode.rate_per_sec", 1.0)
	v.SetDefault("geocode.cache_ttl_days", 30)
	v.SetDefault("sweep.pacing_ms", 1000)
	v.SetDefault("sweep.map_dir", "maps")
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("delivery.dir", "")
	v.SetDefault("delivery.webhook_url", "")
	v.SetDefault("delivery.ftp_url", "")
	v.SetDefault("delivery.retries", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_sweeps", 2)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.not_found_rate_threshold", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts. mode is
// one of "sweep", "batch" or "serve"; read-only commands pass "".
func (c *Config) Validate(mode string) error {
	var missing []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}

	switch mode {
	case "":
	case "sweep", "batch", "serve":
		if c.Shodan.Key == "" {
			missing = append(missing, "shodan.key")
		}
		if c.Geocode.UserAgent == "" {
			missing = append(missing, "geocode.user_agent")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required fields: %s", strings.Join(missing, ", "))
	}

	if mode == "serve" && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return eris.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if mode == "batch" && (c.Batch.MaxConcurrentSweeps < 1 || c.Batch.MaxConcurrentSweeps > 16) {
		return eris.Errorf("config: batch.max_concurrent_sweeps must be between 1 and 16, got %d", c.Batch.MaxConcurrentSweeps)
	}
	if c.Sweep.PacingMs < 0 {
		return eris.Errorf("config: sweep.pacing_ms must not be negative, got %d", c.Sweep.PacingMs)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
