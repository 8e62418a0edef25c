package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/interteks/loomtrack/internal/observability"
	"github.com/interteks/loomtrack/internal/platform/envutil"
	"github.com/interteks/loomtrack/internal/timebucket"
)

const ServiceName = "loomtrack"

type Config struct {
	Port           int      `yaml:"port"`
	LogMode        string   `yaml:"log_mode"`
	StorageBackend string   `yaml:"storage_backend"`
	DatabaseURL    string   `yaml:"database_url"`
	SQLitePath     string   `yaml:"sqlite_path"`
	DataDir        string   `yaml:"data_dir"`
	ReportTimezone string   `yaml:"report_timezone"`
	HeartbeatSecs  int      `yaml:"sse_heartbeat_seconds"`
	CORSOrigins    []string `yaml:"cors_origins"`

	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`

	MQTTBrokerURL string `yaml:"mqtt_broker_url"`
	MQTTTopic     string `yaml:"mqtt_topic"`
	MQTTClientID  string `yaml:"mqtt_client_id"`

	Environment     string  `yaml:"environment"`
	OtelEnabled     bool    `yaml:"otel_enabled"`
	OtelEndpoint    string  `yaml:"otel_endpoint"`
	OtelHeaders     string  `yaml:"otel_headers"`
	OtelInsecure    bool    `yaml:"otel_insecure"`
	OtelSampleRatio float64 `yaml:"otel_sample_ratio"`
}

func DefaultConfig() Config {
	return Config{
		Port:            3000,
		LogMode:         "development",
		StorageBackend:  string(ModeAuto),
		SQLitePath:      "data/loomtrack.db",
		DataDir:         "data",
		ReportTimezone:  timebucket.DefaultTimezone,
		HeartbeatSecs:   15,
		Environment:     "development",
		OtelSampleRatio: 0.1,
	}
}

// LoadConfig layers defaults, the YAML file at path (or $CONFIG_FILE), the
// dotenv file and the process environment, later layers winning. A missing
// YAML or dotenv file is not an error.
func LoadConfig(path, envFile string) (Config, error) {
	cfg := DefaultConfig()

	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", envFile, err)
	}

	if path == "" {
		path = envutil.String("CONFIG_FILE", "")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	cfg.Port = envutil.Int("PORT", cfg.Port)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.StorageBackend = envutil.String("STORAGE_BACKEND", cfg.StorageBackend)
	cfg.DatabaseURL = envOrFile("DATABASE_URL", cfg.DatabaseURL)
	cfg.SQLitePath = envutil.String("SQLITE_PATH", cfg.SQLitePath)
	cfg.DataDir = envutil.String("DATA_DIR", cfg.DataDir)
	cfg.ReportTimezone = envutil.String("REPORT_TIMEZONE", cfg.ReportTimezone)
	cfg.HeartbeatSecs = envutil.Int("SSE_HEARTBEAT_SECONDS", cfg.HeartbeatSecs)
	cfg.CORSOrigins = envutil.List("CORS_ORIGINS", cfg.CORSOrigins)

	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisChannel = envutil.String("REDIS_CHANNEL", cfg.RedisChannel)

	cfg.MQTTBrokerURL = envutil.String("MQTT_BROKER_URL", cfg.MQTTBrokerURL)
	cfg.MQTTTopic = envutil.String("MQTT_TOPIC", cfg.MQTTTopic)
	cfg.MQTTClientID = envutil.String("MQTT_CLIENT_ID", cfg.MQTTClientID)

	cfg.Environment = envutil.String("ENVIRONMENT", cfg.Environment)
	cfg.OtelEnabled = envutil.Bool("OTEL_ENABLED", cfg.OtelEnabled)
	cfg.OtelEndpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OtelEndpoint)
	cfg.OtelHeaders = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", cfg.OtelHeaders)
	cfg.OtelInsecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.OtelInsecure)
	cfg.OtelSampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", cfg.OtelSampleRatio)
}

// envOrFile reads name, or the file named by name_FILE.
func envOrFile(name, def string) string {
	if v := envutil.String(name, ""); v != "" {
		return v
	}
	if p := envutil.String(name+"_FILE", ""); p != "" {
		if raw, err := os.ReadFile(p); err == nil {
			return strings.TrimSpace(string(raw))
		}
	}
	return def
}

func (c Config) Validate() error {
	if _, err := ParseStorageMode(c.StorageBackend); err != nil {
		return err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := timebucket.New(c.ReportTimezone); err != nil {
		return err
	}
	return nil
}

func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSecs) * time.Second
}

func (c Config) Otel() observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:     c.OtelEnabled,
		ServiceName: ServiceName,
		Environment: c.Environment,
		SampleRatio: c.OtelSampleRatio,
		Endpoint:    c.OtelEndpoint,
		Headers:     observability.ParseHeaders(c.OtelHeaders),
		Insecure:    c.OtelInsecure,
	}
}
