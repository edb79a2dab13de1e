package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	API    APIConfig    `yaml:"api" mapstructure:"api"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Retry  RetryConfig  `yaml:"retry" mapstructure:"retry"`
	Export ExportConfig `yaml:"export" mapstructure:"export"`
	Serve  ServeConfig  `yaml:"serve" mapstructure:"serve"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// APIConfig configures the climate policy backend client.
type APIConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst   int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// StoreConfig configures the local database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RetryConfig configures request retry behavior.
type RetryConfig struct {
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	DelayMs        int     `yaml:"delay_ms" mapstructure:"delay_ms"`
	Multiplier     float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ExportConfig configures report generation.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServeConfig configures the local stub server.
type ServeConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("CARBONLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("api.rate_per_sec", 5.0)
	v.SetDefault("api.rate_burst", 10)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "carbonlens.db")
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.delay_ms", 1000)
	v.SetDefault("retry.multiplier", 1.0)
	v.SetDefault("retry.jitter_fraction", 0.0)
	v.SetDefault("export.dir", ".")
	v.SetDefault("serve.port", 8000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks that the configuration is usable for the given mode.
// Modes: "client" (commands that hit the API), "store" (commands that
// touch the local database), "serve" (the local stub server).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "client":
		if c.API.BaseURL == "" {
			problems = append(problems, "api.base_url is required")
		}
		if c.API.TimeoutSecs <= 0 {
			problems = append(problems, "api.timeout_secs must be > 0")
		}
		if c.Retry.MaxRetries < 0 {
			problems = append(problems, "retry.max_retries must be >= 0")
		}
		if c.Retry.DelayMs <= 0 {
			problems = append(problems, "retry.delay_ms must be > 0")
		}
	case "store":
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	case "serve":
		if c.Serve.Port <= 0 {
			problems = append(problems, "serve.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
