// Package config loads the straddle configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/instrument"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/logger"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/markethours"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/risk"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/strategy"
)

// Trading modes.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Quote sources.
const (
	QuotesREST   = "rest"
	QuotesStream = "stream"
)

// ExpiryNearest selects the first listed expiry on or after today.
const ExpiryNearest = "nearest"

// Config holds all application configuration.
type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Master   MasterConfig   `yaml:"master"`
	Straddle StraddleConfig `yaml:"straddle"`
	Risk     risk.Limits    `yaml:"risk"`
	Market   MarketConfig   `yaml:"market"`
	Notify   NotifyConfig   `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// BrokerConfig holds Angel One SmartAPI credentials and endpoints.
type BrokerConfig struct {
	Mode        string        `yaml:"mode"` // paper | live
	APIKey      string        `yaml:"api_key"`
	ClientCode  string        `yaml:"client_code"`
	Password    string        `yaml:"password"` // trading PIN
	TOTPSecret  string        `yaml:"totp_secret"`
	RootURL     string        `yaml:"root_url"`
	StreamURL   string        `yaml:"stream_url"`
	PublicIPURL string        `yaml:"public_ip_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MasterConfig controls where the scrip master comes from and is kept.
type MasterConfig struct {
	URL            string        `yaml:"url"`
	File           string        `yaml:"file"` // read this file instead of downloading
	SavePath       string        `yaml:"save_path"`
	RedisAddr      string        `yaml:"redis_addr"` // empty disables the cache
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	RedisTTL       time.Duration `yaml:"redis_ttl"`
	SQLitePath     string        `yaml:"sqlite_path"` // empty disables snapshots
	SnapshotKeep   int           `yaml:"snapshot_keep"`
	MaxSnapshotAge time.Duration `yaml:"max_snapshot_age"`
	StrikeScale    int64         `yaml:"strike_scale"`
	Timeout        time.Duration `yaml:"timeout"`
}

// StraddleConfig describes the position to enter.
type StraddleConfig struct {
	Underlying   string `yaml:"underlying"`
	SpotSegment  string `yaml:"spot_segment"`
	OptionType   string `yaml:"option_type"`
	Expiry       string `yaml:"expiry"` // "nearest" or a date such as 2024-12-05 / 05DEC2024
	StrikeStep   int64  `yaml:"strike_step"`
	StrikeOffset int    `yaml:"strike_offset"`
	Lots         int    `yaml:"lots"`
	Side         string `yaml:"side"`
	OrderType    string `yaml:"order_type"`
	ProductType  string `yaml:"product_type"`
	Quotes       string `yaml:"quotes"` // rest | stream
}

// MarketConfig controls the trading-hours gate.
type MarketConfig struct {
	// Holidays overrides the built-in NSE list when set.
	Holidays     []string `yaml:"holidays"`
	EnforceHours bool     `yaml:"enforce_hours"`
}

// NotifyConfig configures alert channels. Empty values disable a channel.
type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
	TelegramURL    string `yaml:"telegram_url"`
	WebhookURL     string `yaml:"webhook_url"`
}

// MetricsConfig configures the metrics and lookup server. Empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when a key is not set.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Mode:    ModePaper,
			Timeout: 10 * time.Second,
		},
		Master: MasterConfig{
			SavePath:       "data/OpenAPIScripMaster.json",
			RedisTTL:       12 * time.Hour,
			SnapshotKeep:   5,
			MaxSnapshotAge: 72 * time.Hour,
			StrikeScale:    instrument.DefaultStrikeScale.IntPart(),
			Timeout:        60 * time.Second,
		},
		Straddle: StraddleConfig{
			Underlying:  "NIFTY",
			SpotSegment: string(model.SegmentNSE),
			OptionType:  string(model.TypeOptionIndex),
			Expiry:      ExpiryNearest,
			StrikeStep:  100,
			Lots:        1,
			Side:        string(model.Sell),
			OrderType:   string(model.OrderMarket),
			ProductType: string(model.ProductIntraday),
			Quotes:      QuotesREST,
		},
		Risk:    risk.DefaultLimits(),
		Market:  MarketConfig{EnforceHours: true},
		Metrics: MetricsConfig{Addr: ":9090"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result. ${VAR} references in the file are expanded first.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Broker.APIKey, "ANGEL_API_KEY")
	setString(&c.Broker.ClientCode, "ANGEL_CLIENT_CODE")
	setString(&c.Broker.Password, "ANGEL_PASSWORD")
	setString(&c.Broker.TOTPSecret, "ANGEL_TOTP_SECRET")
	setString(&c.Broker.Mode, "TRADING_MODE")
	setString(&c.Master.RedisAddr, "REDIS_ADDR")
	setString(&c.Master.RedisPassword, "REDIS_PASSWORD")
	setString(&c.Master.SQLitePath, "SQLITE_PATH")
	setString(&c.Metrics.Addr, "METRICS_ADDR")
	setString(&c.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")
	setString(&c.Notify.WebhookURL, "NOTIFY_WEBHOOK_URL")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Straddle.Underlying, "STRADDLE_UNDERLYING")
	if v := os.Getenv("STRADDLE_LOTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STRADDLE_LOTS: %w", err)
		}
		c.Straddle.Lots = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	var errs []error
	if c.Broker.Mode != ModePaper && c.Broker.Mode != ModeLive {
		errs = append(errs, fmt.Errorf("broker.mode must be %q or %q, got %q", ModePaper, ModeLive, c.Broker.Mode))
	}
	if c.Master.StrikeScale <= 0 {
		errs = append(errs, fmt.Errorf("master.strike_scale must be positive, got %d", c.Master.StrikeScale))
	}
	if c.Master.SnapshotKeep < 0 {
		errs = append(errs, errors.New("master.snapshot_keep must not be negative"))
	}
	if c.Straddle.Quotes != QuotesREST && c.Straddle.Quotes != QuotesStream {
		errs = append(errs, fmt.Errorf("straddle.quotes must be %q or %q, got %q", QuotesREST, QuotesStream, c.Straddle.Quotes))
	}
	if _, err := c.Straddle.Strategy(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Risk.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := markethours.ParseHolidays(c.Market.Holidays); err != nil {
		errs = append(errs, err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, errors.New("notify.telegram_token and notify.telegram_chat_id must be set together"))
	}
	return errors.Join(errs...)
}

// ValidateLive checks the credentials needed for a broker session.
func (c *Config) ValidateLive() error {
	var missing []string
	for key, v := range map[string]string{
		"broker.api_key":     c.Broker.APIKey,
		"broker.client_code": c.Broker.ClientCode,
		"broker.password":    c.Broker.Password,
		"broker.totp_secret": c.Broker.TOTPSecret,
	} {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing broker credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Strategy converts the straddle section into a strategy.Config.
func (s StraddleConfig) Strategy() (strategy.Config, error) {
	cfg := strategy.Config{
		Underlying:   strings.ToUpper(s.Underlying),
		SpotSegment:  model.Segment(strings.ToUpper(s.SpotSegment)),
		OptionType:   model.InstrumentType(strings.ToUpper(s.OptionType)),
		StrikeStep:   s.StrikeStep,
		StrikeOffset: s.StrikeOffset,
		Lots:         s.Lots,
		Side:         model.TransactionSide(strings.ToUpper(s.Side)),
		OrderType:    model.OrderType(strings.ToUpper(s.OrderType)),
		ProductType:  model.ProductType(strings.ToUpper(s.ProductType)),
	}
	if exp := strings.TrimSpace(s.Expiry); exp != "" && !strings.EqualFold(exp, ExpiryNearest) {
		t, ok := instrument.ParseExpiry(exp)
		if !ok {
			return strategy.Config{}, fmt.Errorf("straddle.expiry: cannot parse %q", s.Expiry)
		}
		cfg.Expiry = t
	}
	if err := cfg.Validate(); err != nil {
		return strategy.Config{}, err
	}
	return cfg, nil
}
