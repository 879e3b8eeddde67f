package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "SIGNAL_MONITOR_CONFIG"
	databaseDriverEnv  = "DATABASE_DRIVER"
	databaseDSNEnv     = "DATABASE_DSN"
	twitterUserEnv     = "TWITTER_USERNAME"
	twitterPasswordEnv = "TWITTER_PASSWORD"
	twitterEmailEnv    = "TWITTER_EMAIL"
	chatGPTAPIKeyEnv   = "CHATGPT_API_KEY"
	chatGPTModelEnv    = "CHATGPT_MODEL"
	providerEnv        = "ENRICHMENT_PROVIDER"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	pollIntervalEnv    = "POLL_INTERVAL"
	httpAddrEnv        = "HTTP_ADDR"
	logLevelEnv        = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database" toml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler" toml:"scheduler"`
	Source        SourceConfig       `yaml:"source" toml:"source"`
	Enrichment    EnrichmentConfig   `yaml:"enrichment" toml:"enrichment"`
	Notifications NotificationConfig `yaml:"notifications" toml:"notifications"`
	Pipeline      PipelineConfig     `yaml:"pipeline" toml:"pipeline"`
	HTTP          HTTPConfig         `yaml:"http" toml:"http"`
	Logging       LoggingConfig      `yaml:"logging" toml:"logging"`
}

// DatabaseConfig selects the SQL backend. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// SchedulerConfig defines how often the timeline is polled.
type SchedulerConfig struct {
	Interval Duration `yaml:"interval" toml:"interval"`
	// Jitter is the fraction of Interval each wait may deviate by, in [0,1).
	Jitter float64 `yaml:"jitter" toml:"jitter"`
}

// SourceConfig describes how to log in to and read the source.
type SourceConfig struct {
	BaseURL       string   `yaml:"baseUrl" toml:"baseUrl"`
	LoginURL      string   `yaml:"loginUrl" toml:"loginUrl"`
	Username      string   `yaml:"username" toml:"username"`
	Password      string   `yaml:"password" toml:"password"`
	Email         string   `yaml:"email" toml:"email"`
	Headless      bool     `yaml:"headless" toml:"headless"`
	Interactive   bool     `yaml:"interactive" toml:"interactive"`
	ChallengeWait Duration `yaml:"challengeWait" toml:"challengeWait"`
	LoginTimeout  Duration `yaml:"loginTimeout" toml:"loginTimeout"`
	Freshness     Duration `yaml:"freshness" toml:"freshness"`
	Timeout       Duration `yaml:"timeout" toml:"timeout"`
	MaxItems      int      `yaml:"maxItems" toml:"maxItems"`
	// Pages are timeline paths merged into one feed, "/home" by default.
	Pages []string `yaml:"pages" toml:"pages"`
}

// EnrichmentConfig picks and configures the summarisation backend.
type EnrichmentConfig struct {
	Provider string        `yaml:"provider" toml:"provider"`
	Retries  int           `yaml:"retries" toml:"retries"`
	ChatGPT  ChatGPTConfig `yaml:"chatgpt" toml:"chatgpt"`
	Service  ServiceConfig `yaml:"service" toml:"service"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint      string   `yaml:"endpoint" toml:"endpoint"`
	Model         string   `yaml:"model" toml:"model"`
	APIKey        string   `yaml:"apiKey" toml:"apiKey"`
	SystemPrompt  string   `yaml:"systemPrompt" toml:"systemPrompt"`
	Timeout       Duration `yaml:"timeout" toml:"timeout"`
	RatePerSecond float64  `yaml:"ratePerSecond" toml:"ratePerSecond"`
}

// ServiceConfig describes a self-hosted summarisation service.
type ServiceConfig struct {
	InferenceURL string   `yaml:"inferenceUrl" toml:"inferenceUrl"`
	APIKey       string   `yaml:"apiKey" toml:"apiKey"`
	Timeout      Duration `yaml:"timeout" toml:"timeout"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram" toml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	APIURL        string   `yaml:"apiUrl" toml:"apiUrl"`
	BotToken      string   `yaml:"botToken" toml:"botToken"`
	ChatID        string   `yaml:"chatId" toml:"chatId"`
	RatePerSecond float64  `yaml:"ratePerSecond" toml:"ratePerSecond"`
	Retries       int      `yaml:"retries" toml:"retries"`
	Timeout       Duration `yaml:"timeout" toml:"timeout"`
}

// PipelineConfig tunes the poll orchestrator.
type PipelineConfig struct {
	Workers     int      `yaml:"workers" toml:"workers"`
	MaxAttempts int      `yaml:"maxAttempts" toml:"maxAttempts"`
	RetryWindow Duration `yaml:"retryWindow" toml:"retryWindow"`
	Retention   Duration `yaml:"retention" toml:"retention"`
	ItemTimeout Duration `yaml:"itemTimeout" toml:"itemTimeout"`
	Backoff     Duration `yaml:"backoff" toml:"backoff"`
}

// HTTPConfig configures the management API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LoggingConfig selects level and handler format ("text" or "json").
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Duration is a time.Duration that decodes from strings such as "90s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for yaml and toml.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the standard library value.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads the configuration file (if present) over the defaults and applies
// environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit path; an empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decode(path, raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, raw []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(raw, cfg)
	default:
		return yaml.Unmarshal(raw, cfg)
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(twitterUserEnv); v != "" {
		c.Source.Username = v
	}
	if v := os.Getenv(twitterPasswordEnv); v != "" {
		c.Source.Password = v
	}
	if v := os.Getenv(twitterEmailEnv); v != "" {
		c.Source.Email = v
	}

	if v := os.Getenv(providerEnv); v != "" {
		c.Enrichment.Provider = v
	}
	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.Enrichment.ChatGPT.APIKey = v
	}
	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.Enrichment.ChatGPT.Model = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(pollIntervalEnv); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.Interval = Duration(d)
		} else if secs, err := strconv.Atoi(v); err == nil {
			c.Scheduler.Interval = Duration(time.Duration(secs) * time.Second)
		}
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Scheduler.Interval.Std() <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}
	if c.Scheduler.Jitter < 0 || c.Scheduler.Jitter >= 1 {
		errs = append(errs, fmt.Errorf("scheduler.jitter must be in [0,1), got %v", c.Scheduler.Jitter))
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, errors.New("pipeline.workers must be at least 1"))
	}
	if c.Pipeline.MaxAttempts < 1 {
		errs = append(errs, errors.New("pipeline.maxAttempts must be at least 1"))
	}
	if c.Pipeline.RetryWindow.Std() <= 0 || c.Pipeline.Retention.Std() <= 0 {
		errs = append(errs, errors.New("pipeline.retryWindow and pipeline.retention must be positive"))
	}
	if c.Source.Freshness.Std() <= 0 {
		errs = append(errs, errors.New("source.freshness must be positive"))
	}

	return errors.Join(errs...)
}

func defaultConfig() Config {
	return Config{
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "./data/signalmonitor.db"},
		Scheduler: SchedulerConfig{Interval: Duration(60 * time.Second), Jitter: 0.1},
		Source: SourceConfig{
			BaseURL:       "https://x.com",
			LoginURL:      "https://x.com/i/flow/login",
			Headless:      true,
			ChallengeWait: Duration(2 * time.Minute),
			LoginTimeout:  Duration(90 * time.Second),
			Freshness:     Duration(12 * time.Hour),
			Timeout:       Duration(30 * time.Second),
			MaxItems:      50,
			Pages:         []string{"/home"},
		},
		Enrichment: EnrichmentConfig{
			Provider: "chatgpt",
			Retries:  2,
			ChatGPT: ChatGPTConfig{
				Endpoint:      "https://api.openai.com/v1/chat/completions",
				Model:         "gpt-4o-mini",
				Timeout:       Duration(30 * time.Second),
				RatePerSecond: 1,
			},
			Service: ServiceConfig{Timeout: Duration(15 * time.Second)},
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{
				APIURL:        "https://api.telegram.org",
				RatePerSecond: 1,
				Retries:       2,
				Timeout:       Duration(10 * time.Second),
			},
		},
		Pipeline: PipelineConfig{
			Workers:     4,
			MaxAttempts: 3,
			RetryWindow: Duration(24 * time.Hour),
			Retention:   Duration(30 * 24 * time.Hour),
			ItemTimeout: Duration(2 * time.Minute),
			Backoff:     Duration(time.Second),
		},
		HTTP:    HTTPConfig{Addr: ":8000"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
