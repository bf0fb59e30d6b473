package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sozercan/gee-gateway/internal/logging"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	EarthEngine EarthEngineConfig `mapstructure:"ee"`
	Analysis    AnalysisConfig    `mapstructure:"analysis"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// RateLimitRequests per RateLimitWindow and client IP; 0 disables limiting
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

type EarthEngineConfig struct {
	Project         string `mapstructure:"project"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
	APIVersion      string `mapstructure:"api_version"`

	// Timeout bounds a single API call; 0 waits for as long as the service takes
	Timeout time.Duration `mapstructure:"timeout"`

	Collection string `mapstructure:"collection"`

	BreakerEnabled     bool          `mapstructure:"breaker_enabled"`
	BreakerMinRequests uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRate float64       `mapstructure:"breaker_failure_rate"`
	BreakerInterval    time.Duration `mapstructure:"breaker_interval"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout"`

	StatsScale     float64 `mapstructure:"stats_scale"`
	HistogramScale float64 `mapstructure:"histogram_scale"`
	VectorScale    float64 `mapstructure:"vector_scale"`
	MaxPixels      int64   `mapstructure:"max_pixels"`
	TileScale      int     `mapstructure:"tile_scale"`
}

type AnalysisConfig struct {
	MaxCloudCover       float64 `mapstructure:"max_cloud_cover"`
	BestImageWindowDays int     `mapstructure:"best_image_window_days"`
	HistogramBuckets    int     `mapstructure:"histogram_buckets"`
	MaxFeatures         int     `mapstructure:"max_features"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Caller bool   `mapstructure:"caller"`
}

// ConfigFileEnvVar names an explicit config file. Without it ./config.yaml is used when present.
const ConfigFileEnvVar = "CONFIG_FILE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_requests", 0)
	v.SetDefault("server.rate_limit_window", "1m")

	v.SetDefault("ee.project", "")
	v.SetDefault("ee.credentials_file", "")
	v.SetDefault("ee.endpoint", "https://earthengine.googleapis.com")
	v.SetDefault("ee.api_version", "v1")
	v.SetDefault("ee.timeout", "0s")
	v.SetDefault("ee.collection", "LANDSAT/LC08/C02/T1_L2")
	v.SetDefault("ee.breaker_enabled", true)
	v.SetDefault("ee.breaker_min_requests", 10)
	v.SetDefault("ee.breaker_failure_rate", 0.6)
	v.SetDefault("ee.breaker_interval", "1m")
	v.SetDefault("ee.breaker_open_timeout", "1m")
	v.SetDefault("ee.stats_scale", 30)
	v.SetDefault("ee.histogram_scale", 120)
	v.SetDefault("ee.vector_scale", 90)
	v.SetDefault("ee.max_pixels", int64(1e13))
	v.SetDefault("ee.tile_scale", 4)

	v.SetDefault("analysis.max_cloud_cover", 50)
	v.SetDefault("analysis.best_image_window_days", 15)
	v.SetDefault("analysis.histogram_buckets", 20)
	v.SetDefault("analysis.max_features", 5000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.caller", false)
}

// LoadConfig reads defaults, an optional YAML file and environment variables, in
// increasing order of precedence. Environment keys use underscores: ee.project is EE_PROJECT.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(ConfigFileEnvVar); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Info().Str("config_file", v.ConfigFileUsed()).Msg("configuration loaded successfully")
	return &cfg, nil
}

// Validate reports the first setting that would stop the gateway from serving.
func (c *Config) Validate() error {
	if c.EarthEngine.Project == "" {
		return errors.New("EE_PROJECT is required")
	}
	if c.Server.Port == "" {
		return errors.New("SERVER_PORT cannot be empty")
	}
	if c.Analysis.MaxCloudCover < 0 || c.Analysis.MaxCloudCover > 100 {
		return fmt.Errorf("ANALYSIS_MAX_CLOUD_COVER must be within 0..100, got %v", c.Analysis.MaxCloudCover)
	}
	if c.Analysis.BestImageWindowDays < 1 {
		return fmt.Errorf("ANALYSIS_BEST_IMAGE_WINDOW_DAYS must be positive, got %d", c.Analysis.BestImageWindowDays)
	}
	if c.Analysis.HistogramBuckets < 1 {
		return fmt.Errorf("ANALYSIS_HISTOGRAM_BUCKETS must be positive, got %d", c.Analysis.HistogramBuckets)
	}
	if c.Analysis.MaxFeatures < 1 {
		return fmt.Errorf("ANALYSIS_MAX_FEATURES must be positive, got %d", c.Analysis.MaxFeatures)
	}
	if c.EarthEngine.BreakerFailureRate <= 0 || c.EarthEngine.BreakerFailureRate > 1 {
		return fmt.Errorf("EE_BREAKER_FAILURE_RATE must be within (0,1], got %v", c.EarthEngine.BreakerFailureRate)
	}
	return nil
}
