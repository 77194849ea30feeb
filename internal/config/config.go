package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"market-resolver/internal/fetcher"
	"market-resolver/internal/logging"
	"market-resolver/internal/resolution"
	"market-resolver/internal/upstream"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Candles    CandlesConfig    `mapstructure:"candles"`
	Games      GamesConfig      `mapstructure:"games"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// UpstreamConfig tunes the retrying HTTP client shared by every profile.
type UpstreamConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	MaxTotalWait time.Duration `mapstructure:"max_total_wait"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// EndpointConfig is one entry of an ordered endpoint list.
type EndpointConfig struct {
	URL          string `mapstructure:"url"`
	APIKeyHeader string `mapstructure:"api_key_header"`
	APIKey       string `mapstructure:"api_key"`
}

// CandlesConfig covers the klines profile.
type CandlesConfig struct {
	Endpoints    []EndpointConfig `mapstructure:"endpoints"`
	Path         string           `mapstructure:"path"`
	APIKeyHeader string           `mapstructure:"api_key_header"`
	APIKey       string           `mapstructure:"api_key"`
	Interval     string           `mapstructure:"interval"`
	PageSize     int              `mapstructure:"page_size"`
	MaxPages     int              `mapstructure:"max_pages"`
}

// GamesConfig covers the GamesByDate profile.
type GamesConfig struct {
	Endpoints    []EndpointConfig `mapstructure:"endpoints"`
	APIKeyHeader string           `mapstructure:"api_key_header"`
	APIKey       string           `mapstructure:"api_key"`
	Sport        string           `mapstructure:"sport"`
}

// ResolutionConfig holds the market-facing conventions.
type ResolutionConfig struct {
	Timezone string      `mapstructure:"timezone"`
	Codes    CodesConfig `mapstructure:"codes"`
}

// CodesConfig is the outcome code vocabulary.
type CodesConfig struct {
	False      string `mapstructure:"false"`
	True       string `mapstructure:"true"`
	Tie        string `mapstructure:"tie"`
	Unresolved string `mapstructure:"unresolved"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN disables the audit store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the re-resolve loop.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	MaxRuns       int           `mapstructure:"max_runs"`
}

// AlertingConfig defines where resolutions are announced.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// KafkaConfig 描述 Kafka 事件推送参数。
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int    `mapstructure:"max_data_points"`
	Directory     string `mapstructure:"directory"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "market-resolver")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("upstream.timeout", "10s")
	v.SetDefault("upstream.max_attempts", 3)
	v.SetDefault("upstream.backoff_base", "1500ms")
	v.SetDefault("upstream.max_total_wait", "30s")
	v.SetDefault("upstream.user_agent", "")

	v.SetDefault("candles.endpoints", []map[string]any{
		{"url": "https://api.binance.com/api/v3"},
		{"url": "https://data-api.binance.vision/api/v3"},
	})
	v.SetDefault("candles.path", "klines")
	v.SetDefault("candles.api_key_header", "X-MBX-APIKEY")
	v.SetDefault("candles.api_key", "")
	v.SetDefault("candles.interval", "1m")
	v.SetDefault("candles.page_size", fetcher.MaxPageSize)
	v.SetDefault("candles.max_pages", 10000)

	v.SetDefault("games.endpoints", []map[string]any{
		{"url": "https://api.sportsdata.io/v3/{sport}/scores/json"},
	})
	v.SetDefault("games.api_key_header", "Ocp-Apim-Subscription-Key")
	v.SetDefault("games.api_key", "")
	v.SetDefault("games.sport", "nba")

	v.SetDefault("resolution.timezone", "America/New_York")
	v.SetDefault("resolution.codes.false", string(resolution.DefaultVocabulary.False))
	v.SetDefault("resolution.codes.true", string(resolution.DefaultVocabulary.True))
	v.SetDefault("resolution.codes.tie", string(resolution.DefaultVocabulary.Tie))
	v.SetDefault("resolution.codes.unresolved", string(resolution.DefaultVocabulary.Unresolved))

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.max_runs", 0)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.kafka.enabled", false)
	v.SetDefault("alerting.kafka.topic", "market-resolutions")
	v.SetDefault("alerting.kafka.write_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.directory", ".")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Upstream.MaxAttempts <= 0 {
		return fmt.Errorf("upstream.max_attempts must be greater than zero")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be greater than zero")
	}
	if len(c.Candles.Endpoints) == 0 {
		return fmt.Errorf("candles.endpoints must list at least one url")
	}
	if c.Candles.PageSize <= 0 || c.Candles.PageSize > fetcher.MaxPageSize {
		return fmt.Errorf("candles.page_size must be within 1..%d", fetcher.MaxPageSize)
	}
	if c.Candles.MaxPages <= 0 {
		return fmt.Errorf("candles.max_pages must be greater than zero")
	}
	if _, err := fetcher.ParseInterval(c.Candles.Interval); err != nil {
		return fmt.Errorf("candles.interval: %w", err)
	}
	if len(c.Games.Endpoints) == 0 {
		return fmt.Errorf("games.endpoints must list at least one url")
	}
	if strings.TrimSpace(c.Resolution.Timezone) == "" {
		return fmt.Errorf("resolution.timezone 必须配置")
	}
	if err := c.Vocabulary().Validate(); err != nil {
		return fmt.Errorf("resolution.codes: %w", err)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Kafka.Enabled {
		if len(c.Alerting.Kafka.Brokers) == 0 {
			return fmt.Errorf("alerting.kafka.brokers 必须配置")
		}
		if c.Alerting.Kafka.Topic == "" {
			return fmt.Errorf("alerting.kafka.topic 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// Vocabulary returns the configured outcome codes.
func (c *Config) Vocabulary() resolution.Vocabulary {
	return resolution.Vocabulary{
		False:      resolution.Code(c.Resolution.Codes.False),
		True:       resolution.Code(c.Resolution.Codes.True),
		Tie:        resolution.Code(c.Resolution.Codes.Tie),
		Unresolved: resolution.Code(c.Resolution.Codes.Unresolved),
	}
}

// ClientOptions maps upstream settings onto the retrying client.
func (c *Config) ClientOptions(userAgent string) upstream.Options {
	ua := c.Upstream.UserAgent
	if ua == "" {
		ua = userAgent
	}
	return upstream.Options{
		MaxAttempts:  c.Upstream.MaxAttempts,
		BackoffBase:  c.Upstream.BackoffBase,
		MaxTotalWait: c.Upstream.MaxTotalWait,
		Timeout:      c.Upstream.Timeout,
		UserAgent:    ua,
	}
}

// CandleEndpoints builds the ordered klines endpoint set.
func (c *Config) CandleEndpoints() (upstream.EndpointSet, error) {
	return buildEndpoints(c.Candles.Endpoints, c.Candles.APIKeyHeader, c.Candles.APIKey)
}

// GameEndpoints builds the ordered GamesByDate endpoint set. URLs keep their
// {sport} placeholder; callers expand it per request.
func (c *Config) GameEndpoints() (upstream.EndpointSet, error) {
	return buildEndpoints(c.Games.Endpoints, c.Games.APIKeyHeader, c.Games.APIKey)
}

// buildEndpoints applies the section-wide key to entries that carry none of their own.
func buildEndpoints(entries []EndpointConfig, header, key string) (upstream.EndpointSet, error) {
	eps := make([]upstream.Endpoint, 0, len(entries))
	for _, e := range entries {
		h, k := e.APIKeyHeader, e.APIKey
		if h == "" {
			h = header
		}
		if k == "" {
			k = key
		}
		eps = append(eps, upstream.Endpoint{URL: e.URL, Header: upstream.APIKeyHeader(h, k)})
	}
	return upstream.NewEndpointSet(eps...)
}
