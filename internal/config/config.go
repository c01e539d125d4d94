package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "GAMEEVENTS_"

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Dedup         DedupConfig          `koanf:"dedup" validate:"required"`
	Retry         RetryConfig          `koanf:"retry" validate:"required"`
	Kafka         KafkaConfig          `koanf:"kafka"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port          string        `koanf:"port" validate:"required"`
	ReadTimeout   time.Duration `koanf:"read_timeout" validate:"min=0"`
	WriteTimeout  time.Duration `koanf:"write_timeout" validate:"min=0"`
	IdleTimeout   time.Duration `koanf:"idle_timeout" validate:"min=0"`
	MaxBatchBytes int64         `koanf:"max_batch_bytes" validate:"min=0"`
	// HTTPInputs is a comma separated list of extra /ingest/<name> endpoints.
	HTTPInputs string `koanf:"http_inputs"`
}

type DedupConfig struct {
	Backend string `koanf:"backend" validate:"required,oneof=dynamodb redis postgres sqlite memory"`

	// dynamodb
	Table     string `koanf:"table" validate:"required_if=Backend dynamodb"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`

	// redis
	RedisURL string `koanf:"redis_url" validate:"required_if=Backend redis"`

	// postgres
	DatabaseURL string `koanf:"database_url" validate:"required_if=Backend postgres"`
	MaxConns    int32  `koanf:"max_conns" validate:"min=0"`

	// sqlite
	SQLitePath string `koanf:"sqlite_path" validate:"required_if=Backend sqlite"`

	// memory
	MaxKeys int `koanf:"max_keys" validate:"min=0"`

	// ReapInterval is how often expired claims are purged from SQL backends.
	ReapInterval time.Duration `koanf:"reap_interval" validate:"min=0"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" validate:"min=1"`
	Multiplier  float64       `koanf:"multiplier" validate:"gt=0"`
	MinWait     time.Duration `koanf:"min_wait" validate:"min=0"`
	MaxWait     time.Duration `koanf:"max_wait" validate:"min=0,gtefield=MinWait"`
}

// KafkaConfig enables the Kafka input when Brokers is set.
type KafkaConfig struct {
	Brokers   string        `koanf:"brokers"`
	Topic     string        `koanf:"topic" validate:"required_with=Brokers"`
	GroupID   string        `koanf:"group_id" validate:"required_with=Brokers"`
	BatchSize int           `koanf:"batch_size" validate:"min=0"`
	MaxWait   time.Duration `koanf:"max_wait" validate:"min=0"`
}

func (k KafkaConfig) Enabled() bool { return strings.TrimSpace(k.Brokers) != "" }

// legacyEnv maps the flat variable names of earlier deployments onto keys.
// They only apply when the prefixed variable is not set.
var legacyEnv = map[string]string{
	"DEDUP_TABLE": "dedup.table",
	"AWS_REGION":  "dedup.region",
}

func defaults() map[string]any {
	return map[string]any{
		"primary.env":            "development",
		"server.port":            "8080",
		"server.read_timeout":    "10s",
		"server.write_timeout":   "30s",
		"server.idle_timeout":    "60s",
		"server.max_batch_bytes": 4 << 20,
		"dedup.backend":          "dynamodb",
		"dedup.table":            "game-events-dedup",
		"dedup.region":           "us-east-1",
		"dedup.max_keys":         100000,
		"dedup.reap_interval":    "5m",
		"retry.max_attempts":     3,
		"retry.multiplier":       1.0,
		"retry.min_wait":         "4s",
		"retry.max_wait":         "10s",
		"kafka.batch_size":       100,
		"kafka.max_wait":         "1s",
	}
}

// envKey turns GAMEEVENTS_DEDUP__TABLE into dedup.table.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// LoadConfig loads the configuration from defaults, the given .env files (or
// ./.env when present) and the environment, then validates it.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	for key, v := range defaults() {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}
	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("could not load env variables: %w", err)
	}

	cfg := &Config{Observability: DefaultObservabilityConfig()}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "gameevents"
	}
	cfg.Observability.Environment = cfg.Primary.Env

	if err := cfg.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// HTTPInputNames returns the configured extra ingest endpoint names.
func (s ServerConfig) HTTPInputNames() []string {
	var out []string
	for _, n := range strings.Split(s.HTTPInputs, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// BrokerList splits the comma separated broker addresses.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
