package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/autoshop-ai/orchestrator/internal/reasoning"
	"github.com/autoshop-ai/orchestrator/internal/store"
)

// Config is the orchestrator service configuration, loaded from YAML with
// AUTOSHOP_-prefixed environment overrides.
type Config struct {
	Service   ServiceConfig         `mapstructure:"service"`
	Temporal  TemporalConfig        `mapstructure:"temporal"`
	Store     StoreConfig           `mapstructure:"store"`
	Redis     RedisConfig           `mapstructure:"redis"`
	Reasoning reasoning.Config      `mapstructure:"reasoning"`
	Streaming StreamingConfig       `mapstructure:"streaming"`
	Prompts   PromptsConfig         `mapstructure:"prompts"`
	Tracing   TracingConfig         `mapstructure:"tracing"`
	Logging   LoggingConfig         `mapstructure:"logging"`
}

type ServiceConfig struct {
	HTTPPort    int `mapstructure:"http_port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// Worker concurrency
	MaxConcurrentActivities int `mapstructure:"max_concurrent_activities"`
	MaxConcurrentWorkflows  int `mapstructure:"max_concurrent_workflows"`
}

// StoreConfig selects the request store backend: "postgres" or "memory".
type StoreConfig struct {
	Driver   string               `mapstructure:"driver"`
	Postgres store.PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	// StreamMaxLen bounds each mirrored event stream.
	StreamMaxLen int64 `mapstructure:"stream_max_len"`
}

type StreamingConfig struct {
	RingCapacity int `mapstructure:"ring_capacity"`
}

type PromptsConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from CONFIG_PATH (default
// ./config/orchestrator.yaml). A missing file is not an error; defaults and
// environment variables still apply.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("service.http_port", 8080)
	v.SetDefault("service.metrics_port", 2112)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "autoshop-research")
	v.SetDefault("temporal.max_concurrent_activities", 10)
	v.SetDefault("temporal.max_concurrent_workflows", 10)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "autoshop")
	v.SetDefault("store.postgres.database", "autoshop")
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.stream_max_len", 1024)
	v.SetDefault("reasoning.base_url", "http://localhost:8000")
	v.SetDefault("reasoning.timeout", 2*time.Minute)
	v.SetDefault("streaming.ring_capacity", 256)
	v.SetDefault("tracing.service_name", "autoshop-orchestrator")
	v.SetDefault("logging.level", "info")

	v.SetEnvPrefix("AUTOSHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/orchestrator.yaml"
	}
	v.SetConfigFile(cfgPath)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
