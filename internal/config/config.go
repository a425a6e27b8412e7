package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/restock-monitor/internal/browser"
)

type Config struct {
	Monitor  MonitorConfig
	Browser  BrowserConfig
	Notify   NotifyConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Status   StatusConfig
	Logging  LoggingConfig
}

type MonitorConfig struct {
	ItemsFile      string
	ProductName    string
	Interval       time.Duration
	TrailingDelay  bool
	MarkerTimeout  time.Duration
	RepeatInterval time.Duration
}

type BrowserConfig struct {
	Engine         string
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type NotifyConfig struct {
	Sink              string
	DiscordWebhookURL string
	Stream            string
	RelayInterval     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type StatusConfig struct {
	Addr string
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

const (
	SinkDiscord = "discord"
	SinkRedis   = "redis"
	SinkOutbox  = "outbox"
	SinkLog     = "log"
)

var ErrNoItems = errors.New("no items to monitor")

func Load() (*Config, error) {
	cfg := &Config{
		Monitor: MonitorConfig{
			ItemsFile:      getEnvOrDefault("MONITOR_ITEMS_FILE", ""),
			ProductName:    getEnvOrDefault("MONITOR_PRODUCT_NAME", "Ryzen 7 9800X3D"),
			Interval:       getDurationOrDefault("MONITOR_INTERVAL", 300*time.Second),
			TrailingDelay:  getBoolOrDefault("MONITOR_TRAILING_DELAY", true),
			MarkerTimeout:  getDurationOrDefault("MONITOR_MARKER_TIMEOUT", 10*time.Second),
			RepeatInterval: getDurationOrDefault("MONITOR_REPEAT_INTERVAL", 0),
		},
		Browser: BrowserConfig{
			Engine:         strings.ToLower(getEnvOrDefault("BROWSER_ENGINE", browser.EnginePlaywright)),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ja-JP,ja;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Tokyo"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ja-JP"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Notify: NotifyConfig{
			Sink:              strings.ToLower(getEnvOrDefault("NOTIFY_SINK", SinkDiscord)),
			DiscordWebhookURL: getEnvOrDefault("DISCORD_WEBHOOK_URL", ""),
			Stream:            getEnvOrDefault("NOTIFY_REDIS_STREAM", "stream:stock_alerts"),
			RelayInterval:     getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "restock_monitor"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 5)),
		},
		Status: StatusConfig{
			Addr: getEnvOrDefault("STATUS_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
			File:   getEnvOrDefault("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Monitor.Interval < 0 {
		return fmt.Errorf("MONITOR_INTERVAL cannot be negative")
	}

	if c.Monitor.MarkerTimeout <= 0 {
		return fmt.Errorf("MONITOR_MARKER_TIMEOUT must be positive")
	}

	if c.Monitor.RepeatInterval < 0 {
		return fmt.Errorf("MONITOR_REPEAT_INTERVAL cannot be negative")
	}

	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("BROWSER_TIMEOUT must be positive")
	}

	switch c.Browser.Engine {
	case browser.EnginePlaywright, browser.EngineStatic:
	default:
		return fmt.Errorf("unsupported BROWSER_ENGINE %q", c.Browser.Engine)
	}

	switch c.Notify.Sink {
	case SinkDiscord:
		if c.Notify.DiscordWebhookURL == "" {
			return fmt.Errorf("DISCORD_WEBHOOK_URL is required for the discord sink")
		}
	case SinkRedis, SinkOutbox:
		if c.Notify.Stream == "" {
			return fmt.Errorf("NOTIFY_REDIS_STREAM is required for the %s sink", c.Notify.Sink)
		}
	case SinkLog:
	default:
		return fmt.Errorf("unsupported NOTIFY_SINK %q", c.Notify.Sink)
	}

	if c.Notify.Sink == SinkOutbox && c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required for the outbox sink")
	}

	return nil
}

// ForwarderConfig configures the alert-forwarder process, which reads the
// alert stream and posts each entry to the discord webhook.
type ForwarderConfig struct {
	Stream            string
	Group             string
	Consumer          string
	DiscordWebhookURL string
	Redis             RedisConfig
	Logging           LoggingConfig
}

func LoadForwarder() (*ForwarderConfig, error) {
	cfg := &ForwarderConfig{
		Stream:            getEnvOrDefault("NOTIFY_REDIS_STREAM", "stream:stock_alerts"),
		Group:             getEnvOrDefault("FORWARDER_GROUP", "alert-forwarder-group"),
		Consumer:          getEnvOrDefault("FORWARDER_CONSUMER", "forwarder-1"),
		DiscordWebhookURL: getEnvOrDefault("DISCORD_WEBHOOK_URL", ""),
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
			File:   getEnvOrDefault("LOG_FILE", ""),
		},
	}

	if cfg.DiscordWebhookURL == "" {
		return nil, fmt.Errorf("DISCORD_WEBHOOK_URL is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
