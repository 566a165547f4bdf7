package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"EduX/internal/service/mdp"
	"EduX/pkg/cache"
	"EduX/pkg/clickhouse"
	xhttp "EduX/pkg/http"
	"EduX/pkg/kafka"
	"EduX/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EDUX"

type Config struct {
	Environment string             `yaml:"environment" default:"development"`
	Log         logger.Config      `yaml:"log"`
	HTTP        xhttp.ServerConfig `yaml:"http"`
	MDP         mdp.Options        `yaml:"mdp"`
	Session     SessionConfig      `yaml:"session"`
	Source      string             `yaml:"source" default:"mdp"` // mdp | kafka
	Pipeline    PipelineConfig     `yaml:"pipeline"`
	Archive     ArchiveConfig      `yaml:"archive"`
	History     HistoryConfig      `yaml:"history"`
	API         APIConfig          `yaml:"api"`
	CandleFeed  CandleFeedConfig   `yaml:"candle_feed"`
	Cache       cache.Config       `yaml:"cache"`
	Kafka       kafka.Config       `yaml:"kafka"`
	ClickHouse  clickhouse.Config  `yaml:"clickhouse"`
}

type SessionConfig struct {
	Symbols       []string      `yaml:"symbols" default:"[\"AAPL\",\"GOOGL\",\"MSFT\",\"AMZN\",\"TSLA\",\"META\",\"NVDA\",\"JPM\"]"`
	Ticker        string        `yaml:"ticker" default:"AAPL"`
	Timeframe     string        `yaml:"timeframe" default:"1m"`
	HistoryWindow time.Duration `yaml:"history_window" default:"2h"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" default:"10s"`
	BookDepth     int           `yaml:"book_depth" default:"50"`
}

type PipelineConfig struct {
	BookRPS float64 `yaml:"book_rps" default:"20"` // per ticker
}

type ArchiveConfig struct {
	Backend      string        `yaml:"backend" default:"none"` // clickhouse | kafka | none
	BatchSize    int           `yaml:"batch_size" default:"1"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
}

type HistoryConfig struct {
	Backend string `yaml:"backend" default:"demo"` // clickhouse | demo
	Seed    int64  `yaml:"seed"`
}

type APIConfig struct {
	SymbolSwitchRPS   float64 `yaml:"symbol_switch_rps" default:"1"`
	SymbolSwitchBurst int     `yaml:"symbol_switch_burst" default:"5"`
}

type CandleFeedConfig struct {
	Enabled bool `yaml:"enabled"`
	Buffer  int  `yaml:"buffer" default:"1024"`
}

// envOverrides lists the settings that may come from the environment,
// e.g. EDUX_MDP_ENDPOINT or EDUX_KAFKA_BROKERS=a:9092,b:9092.
type envOverrides struct {
	Environment  string   `envconfig:"ENV"`
	LogLevel     string   `envconfig:"LOG_LEVEL"`
	HTTPPort     int      `envconfig:"HTTP_PORT"`
	MDPEndpoint  string   `envconfig:"MDP_ENDPOINT"`
	Ticker       string   `envconfig:"TICKER"`
	Symbols      []string `envconfig:"SYMBOLS"`
	Timeframe    string   `envconfig:"TIMEFRAME"`
	Source       string   `envconfig:"SOURCE"`
	Backend      string   `envconfig:"BACKEND"`
	History      string   `envconfig:"HISTORY"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	CHHost       string   `envconfig:"CLICKHOUSE_HOST"`
	CHPassword   string   `envconfig:"CLICKHOUSE_PASSWORD"`
	RedisHost    string   `envconfig:"REDIS_HOST"`
	RedisPass    string   `envconfig:"REDIS_PASSWORD"`
}

// Load reads and parses a YAML configuration file, applies defaults and validates it.
// A missing file is not an error: defaults still apply.
func Load(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (optional), the YAML file, then environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}

	c, err := load(path)
	if err != nil {
		return nil, err
	}
	env.apply(c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (e envOverrides) apply(c *Config) {
	setString(&c.Environment, e.Environment)
	setString(&c.Log.Level, e.LogLevel)
	if e.HTTPPort > 0 {
		c.HTTP.Port = e.HTTPPort
	}
	setString(&c.MDP.WebsocketURL, e.MDPEndpoint)
	setString(&c.Session.Ticker, e.Ticker)
	if len(e.Symbols) > 0 {
		c.Session.Symbols = e.Symbols
	}
	setString(&c.Session.Timeframe, e.Timeframe)
	setString(&c.Source, e.Source)
	setString(&c.Archive.Backend, e.Backend)
	setString(&c.History.Backend, e.History)
	if len(e.KafkaBrokers) > 0 {
		c.Kafka.Brokers = e.KafkaBrokers
	}
	setString(&c.ClickHouse.Host, e.CHHost)
	setString(&c.ClickHouse.Password, e.CHPassword)
	if e.RedisHost != "" {
		c.Cache.Redis.Host = e.RedisHost
		c.Cache.Redis.Enabled = true
	}
	setString(&c.Cache.Redis.Password, e.RedisPass)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Session.Symbols) == 0 {
		return fmt.Errorf("session.symbols is required")
	}
	if !contains(c.Session.Symbols, c.Session.Ticker) {
		return fmt.Errorf("session.ticker %q is not in session.symbols", c.Session.Ticker)
	}
	if !oneOf(c.Session.Timeframe, "1m", "5m", "15m", "1h", "4h", "1d") {
		return fmt.Errorf("session.timeframe %q is not supported", c.Session.Timeframe)
	}
	if c.MDP.WebsocketURL == "" && c.Source == "mdp" {
		return fmt.Errorf("mdp.websocket_url is required")
	}
	if !oneOf(c.Source, "mdp", "kafka") {
		return fmt.Errorf("source must be mdp or kafka, got %q", c.Source)
	}
	if !oneOf(c.Archive.Backend, "clickhouse", "kafka", "none") {
		return fmt.Errorf("archive.backend must be clickhouse, kafka, or none, got %q", c.Archive.Backend)
	}
	if !oneOf(c.History.Backend, "clickhouse", "demo") {
		return fmt.Errorf("history.backend must be clickhouse or demo, got %q", c.History.Backend)
	}
	if c.Source == "kafka" && c.Archive.Backend == "kafka" {
		return fmt.Errorf("archive.backend kafka would re-publish the consumed topic")
	}
	if c.NeedsKafka() && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.NeedsClickHouse() && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	return nil
}

// NeedsKafka reports whether any component talks to Kafka.
func (c *Config) NeedsKafka() bool {
	return c.Source == "kafka" || c.Archive.Backend == "kafka" || c.CandleFeed.Enabled
}

// NeedsClickHouse reports whether any component talks to ClickHouse.
func (c *Config) NeedsClickHouse() bool {
	return c.Archive.Backend == "clickhouse" || c.History.Backend == "clickhouse"
}

func oneOf(v string, opts ...string) bool {
	for _, o := range opts {
		if v == o {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
