package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration. Threshold validation happens
// once at load time: structurally invalid values fail startup rather than
// being caught per cycle.
type Config struct {
	Environment string `yaml:"environment" default:"dev" validate:"required"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`

	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost" validate:"required"`
		Port             int           `yaml:"port" default:"9000" validate:"gt=0"`
		Database         string        `yaml:"database" default:"perpscope" validate:"required"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		LevelsTable      string        `yaml:"levels_table" default:"weekly_levels" validate:"required"`
		LookbackDays     int           `yaml:"lookback_days" default:"21" validate:"gte=14"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled       bool          `yaml:"enabled"`
		Brokers       []string      `yaml:"brokers"`
		SnapshotTopic string        `yaml:"snapshot_topic" default:"perpscope.snapshots"`
		SignalTopic   string        `yaml:"signal_topic" default:"perpscope.signals"`
		RequiredAcks  int           `yaml:"required_acks" default:"-1"`
		Compression   string        `yaml:"compression" default:"gzip"`
		WriteTimeout  time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`

	Binance BinanceConfig `yaml:"binance"`

	Workflow WorkflowConfig `yaml:"workflow"`
}

// BinanceConfig configures the futures market-data source. ProxyURL routes
// requests through an HTTP relay when the exchange blocks the origin region;
// the core only sees a working fetch function either way.
type BinanceConfig struct {
	BaseURL        string        `yaml:"base_url" default:"https://fapi.binance.com" validate:"required,url"`
	ProxyURL       string        `yaml:"proxy_url" validate:"omitempty,url"`
	BarInterval    string        `yaml:"bar_interval" default:"30m" validate:"oneof=5m 15m 30m 1h 4h"`
	KlineLimit     int           `yaml:"kline_limit" default:"50" validate:"gte=25,lte=500"`
	QuoteSuffix    string        `yaml:"quote_suffix" default:"USDT" validate:"required"`
	RequestsPerSec int           `yaml:"requests_per_sec" default:"8" validate:"gt=0"`
	Timeout        time.Duration `yaml:"timeout" default:"10s"`
	CacheTTL       time.Duration `yaml:"cache_ttl" default:"60s"`
	MaxRetryTime   time.Duration `yaml:"max_retry_time" default:"15s"`
	UseMock        bool          `yaml:"use_mock"`
}

// WorkflowConfig holds the decision-engine thresholds. These values are the
// whole tuning surface; nothing else is tunable.
type WorkflowConfig struct {
	Classifier struct {
		TolerancePct         float64 `yaml:"tolerance_pct" default:"0.2" validate:"gt=0"`
		CompressionThreshold float64 `yaml:"compression_threshold" default:"1.5" validate:"gt=0"`
		ExtendedThreshold    float64 `yaml:"extended_threshold" default:"3.0" validate:"gt=0"`
	} `yaml:"classifier"`

	Signals struct {
		ZScoreWindow         int     `yaml:"zscore_window" default:"21" validate:"gte=2"`
		ZScoreThreshold      float64 `yaml:"zscore_threshold" default:"2.0" validate:"gt=0"`
		CVDShortWindow       int     `yaml:"cvd_short_window" default:"11" validate:"gte=1"`
		CVDLongWindow        int     `yaml:"cvd_long_window" default:"21" validate:"gte=2,gtfield=CVDShortWindow"`
		CVDMomentumThreshold float64 `yaml:"cvd_momentum_threshold" default:"0" validate:"gte=0"`
	} `yaml:"signals"`

	Refresh struct {
		MaxInflight  int           `yaml:"max_inflight" default:"6" validate:"gt=0,lte=64"`
		FetchTimeout time.Duration `yaml:"fetch_timeout" default:"8s"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"30s"`
	} `yaml:"refresh"`
}

var validate = validator.New()

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse builds a Config from raw YAML.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables. A .env file next to the process is honored if present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BINANCE_PROXY_URL"); v != "" {
		c.Binance.ProxyURL = v
	}
	if v := os.Getenv("USE_MOCK_DATA"); v != "" {
		c.Binance.UseMock = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port := splitHostPort(v, c.Redis.Port)
		c.Redis.Host, c.Redis.Port = host, port
		c.Redis.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks structural validity of the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	return nil
}

func splitHostPort(addr string, defaultPort int) (string, int) {
	host := addr
	port := defaultPort
	if i := strings.LastIndex(addr, ":"); i > 0 {
		host = addr[:i]
		fmt.Sscanf(addr[i+1:], "%d", &port)
	}
	return host, port
}
