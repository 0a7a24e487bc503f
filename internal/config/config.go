// Package config loads the service configuration from YAML with
// environment overrides, and hot-reloads search source profiles.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helicon-ai/inquiro/internal/llm"
	"github.com/helicon-ai/inquiro/internal/memory"
	"github.com/helicon-ai/inquiro/internal/search"
	"github.com/helicon-ai/inquiro/internal/tracing"
)

// ServiceConfig holds the HTTP server settings.
type ServiceConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

// ResearchConfig bounds the research loop and coordinator.
type ResearchConfig struct {
	MaxIterations   int  `mapstructure:"max_iterations"`
	QueriesPerTurn  int  `mapstructure:"queries_per_turn"`
	ResultsPerQuery int  `mapstructure:"results_per_query"`
	MaxWorkers      int  `mapstructure:"max_workers"`
	Parallel        bool `mapstructure:"parallel"`
}

// RedisConfig holds session store connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full service configuration.
type Config struct {
	Service       ServiceConfig        `mapstructure:"service"`
	Research      ResearchConfig       `mapstructure:"research"`
	LLM           llm.Config           `mapstructure:"llm"`
	Search        search.Config        `mapstructure:"search"`
	Redis         RedisConfig          `mapstructure:"redis"`
	Archive       memory.ArchiveConfig `mapstructure:"archive"`
	ArchiveEnable bool                 `mapstructure:"archive_enabled"`
	CheckpointDir string               `mapstructure:"checkpoint_dir"`
	BusCapacity   int                  `mapstructure:"bus_capacity"`
	Tracing       tracing.Config       `mapstructure:"tracing"`
	Logging       LoggingConfig        `mapstructure:"logging"`
	ProfilesDir   string               `mapstructure:"profiles_dir"`
}

// Load reads the config file named by INQUIRO_CONFIG, falling back to
// config/inquiro.yaml. Every key can be overridden through the
// environment with the INQUIRO_ prefix, dots replaced by underscores
// (e.g. INQUIRO_LLM_API_KEY).
func Load() (*Config, error) {
	path := os.Getenv("INQUIRO_CONFIG")
	if path == "" {
		path = "config/inquiro.yaml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("INQUIRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when the environment carries the keys.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", 8080)
	v.SetDefault("service.metrics_port", 2112)
	v.SetDefault("service.read_timeout", "30s")
	v.SetDefault("service.write_timeout", "5m")
	v.SetDefault("service.graceful_timeout", "15s")

	v.SetDefault("research.max_iterations", 3)
	v.SetDefault("research.queries_per_turn", 2)
	v.SetDefault("research.results_per_query", 4)
	v.SetDefault("research.max_workers", 3)
	v.SetDefault("research.parallel", false)

	v.SetDefault("llm.model", "llama-3.1-8b-instant")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", "20s")
	v.SetDefault("search.rate_per_second", 5)
	v.SetDefault("search.burst", 5)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("archive_enabled", false)
	v.SetDefault("archive.host", "localhost")
	v.SetDefault("archive.port", 5432)
	v.SetDefault("archive.database", "inquiro")

	v.SetDefault("checkpoint_dir", "./checkpoints")
	v.SetDefault("bus_capacity", 256)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "inquiro")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
