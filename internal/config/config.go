package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/battery-notifier/config.toml"

const (
	minAttempts              = 1
	maxAttempts              = 10
	minRetryDelaySeconds     = 0
	maxRetryDelaySeconds     = 300
	minConnectTimeoutSeconds = 1
	maxConnectTimeoutSeconds = 60
	minRequestTimeoutSeconds = 1
	maxRequestTimeoutSeconds = 300
	minPollTimeoutSeconds    = 0
	maxPollTimeoutSeconds    = 50
	minReportMinute          = 0
	maxReportMinute          = 59
	minLoopIntervalMs        = 10
	maxLoopIntervalMs        = 10000
	minUpdatePollSeconds     = 1
	maxUpdatePollSeconds     = 3600
	minHourlyCheckSeconds    = 1
	maxHourlyCheckSeconds    = 3599
	minErrorSleepSeconds     = 1
	maxErrorSleepSeconds     = 3600
	minCriticalThreshold     = 0
	maxCriticalThreshold     = 100
	minMQTTPort              = 1
	maxMQTTPort              = 65535
)

type Config struct {
	Battery  BatteryConfig  `toml:"battery"`
	Telegram TelegramConfig `toml:"telegram"`
	Schedule ScheduleConfig `toml:"schedule"`
	Storage  StorageConfig  `toml:"storage"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	MQTT     MQTTConfig     `toml:"mqtt"`
	DBus     DBusConfig     `toml:"dbus"`
}

// BatteryConfig points at the sysfs directory holding the battery attributes.
type BatteryConfig struct {
	Root              string `toml:"root"`
	ReadAttempts      int    `toml:"read_attempts"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
}

type TelegramConfig struct {
	APIURL                string `toml:"api_url"`
	Token                 string `toml:"token"`
	ChatID                string `toml:"chat_id"`
	ParseMode             string `toml:"parse_mode"`
	RefreshData           string `toml:"refresh_data"`
	MaxAttempts           int    `toml:"max_attempts"`
	RetryDelaySeconds     int    `toml:"retry_delay_seconds"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	PollTimeoutSeconds    int    `toml:"poll_timeout_seconds"`
}

type ScheduleConfig struct {
	ReportMinute       int `toml:"report_minute"`
	LoopIntervalMs     int `toml:"loop_interval_ms"`
	UpdatePollSeconds  int `toml:"update_poll_seconds"`
	HourlyCheckSeconds int `toml:"hourly_check_seconds"`
	ErrorSleepSeconds  int `toml:"error_sleep_seconds"`
	CriticalThreshold  int `toml:"critical_threshold"`
}

type StorageConfig struct {
	// StateDBPath is optional; an empty path disables cursor persistence.
	StateDBPath string `toml:"state_db_path"`
}

type LogConfig struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}

type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

type MQTTConfig struct {
	Broker   string `toml:"broker"`
	Port     int    `toml:"port"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
}

type DBusConfig struct {
	SleepMonitor  bool `toml:"sleep_monitor"`
	ExportService bool `toml:"export_service"`
}

func DefaultConfig() *Config {
	return &Config{
		Battery: BatteryConfig{
			Root:              "/sys/class/power_supply/battery",
			ReadAttempts:      3,
			RetryDelaySeconds: 5,
		},
		Telegram: TelegramConfig{
			APIURL:                "https://api.telegram.org",
			ParseMode:             "HTML",
			RefreshData:           "refresh_battery",
			MaxAttempts:           3,
			RetryDelaySeconds:     5,
			ConnectTimeoutSeconds: 10,
			RequestTimeoutSeconds: 30,
			PollTimeoutSeconds:    10,
		},
		Schedule: ScheduleConfig{
			ReportMinute:       0,
			LoopIntervalMs:     200,
			UpdatePollSeconds:  1,
			HourlyCheckSeconds: 55,
			ErrorSleepSeconds:  30,
			CriticalThreshold:  15,
		},
		Log: LogConfig{
			File:  "/var/log/battery-notifier.log",
			Level: "info",
		},
		MQTT: MQTTConfig{
			Port:  1883,
			Topic: "battery/status",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	ApplyEnv(cfg)
	return NormalizeAndValidate(cfg)
}

// ApplyEnv overrides the Telegram credentials from TELEGRAM_BOT_TOKEN and
// TELEGRAM_CHAT_ID so secrets can stay out of the config file.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Battery.Root, err = sanitizePath("battery.root", sanitized.Battery.Root)
	if err != nil {
		return nil, err
	}
	sanitized.Log.File, err = sanitizePath("log.file", sanitized.Log.File)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(sanitized.Storage.StateDBPath) != "" {
		sanitized.Storage.StateDBPath, err = sanitizePath("storage.state_db_path", sanitized.Storage.StateDBPath)
		if err != nil {
			return nil, err
		}
	} else {
		sanitized.Storage.StateDBPath = ""
	}

	if _, err := ParseLevel(sanitized.Log.Level); err != nil {
		return nil, err
	}

	sanitized.Telegram.APIURL = strings.TrimRight(strings.TrimSpace(sanitized.Telegram.APIURL), "/")
	u, err := url.Parse(sanitized.Telegram.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("telegram.api_url must be an http(s) URL, got %q", cfg.Telegram.APIURL)
	}
	sanitized.Telegram.Token = strings.TrimSpace(sanitized.Telegram.Token)
	sanitized.Telegram.ChatID = strings.TrimSpace(sanitized.Telegram.ChatID)
	if strings.TrimSpace(sanitized.Telegram.RefreshData) == "" {
		return nil, fmt.Errorf("telegram.refresh_data must not be empty")
	}

	ranges := []struct {
		name     string
		value    int
		min, max int
	}{
		{"battery.read_attempts", sanitized.Battery.ReadAttempts, minAttempts, maxAttempts},
		{"battery.retry_delay_seconds", sanitized.Battery.RetryDelaySeconds, minRetryDelaySeconds, maxRetryDelaySeconds},
		{"telegram.max_attempts", sanitized.Telegram.MaxAttempts, minAttempts, maxAttempts},
		{"telegram.retry_delay_seconds", sanitized.Telegram.RetryDelaySeconds, minRetryDelaySeconds, maxRetryDelaySeconds},
		{"telegram.connect_timeout_seconds", sanitized.Telegram.ConnectTimeoutSeconds, minConnectTimeoutSeconds, maxConnectTimeoutSeconds},
		{"telegram.request_timeout_seconds", sanitized.Telegram.RequestTimeoutSeconds, minRequestTimeoutSeconds, maxRequestTimeoutSeconds},
		{"telegram.poll_timeout_seconds", sanitized.Telegram.PollTimeoutSeconds, minPollTimeoutSeconds, maxPollTimeoutSeconds},
		{"schedule.report_minute", sanitized.Schedule.ReportMinute, minReportMinute, maxReportMinute},
		{"schedule.loop_interval_ms", sanitized.Schedule.LoopIntervalMs, minLoopIntervalMs, maxLoopIntervalMs},
		{"schedule.update_poll_seconds", sanitized.Schedule.UpdatePollSeconds, minUpdatePollSeconds, maxUpdatePollSeconds},
		{"schedule.hourly_check_seconds", sanitized.Schedule.HourlyCheckSeconds, minHourlyCheckSeconds, maxHourlyCheckSeconds},
		{"schedule.error_sleep_seconds", sanitized.Schedule.ErrorSleepSeconds, minErrorSleepSeconds, maxErrorSleepSeconds},
		{"schedule.critical_threshold", sanitized.Schedule.CriticalThreshold, minCriticalThreshold, maxCriticalThreshold},
		{"mqtt.port", sanitized.MQTT.Port, minMQTTPort, maxMQTTPort},
	}
	for _, r := range ranges {
		if err := validateRange(r.name, r.value, r.min, r.max); err != nil {
			return nil, err
		}
	}

	// The HTTP deadline has to outlive the server-side long poll.
	if sanitized.Telegram.RequestTimeoutSeconds <= sanitized.Telegram.PollTimeoutSeconds {
		return nil, fmt.Errorf("telegram.request_timeout_seconds (%d) must exceed telegram.poll_timeout_seconds (%d)",
			sanitized.Telegram.RequestTimeoutSeconds, sanitized.Telegram.PollTimeoutSeconds)
	}

	sanitized.MQTT.Broker = strings.TrimSpace(sanitized.MQTT.Broker)
	if sanitized.MQTT.Broker != "" && strings.TrimSpace(sanitized.MQTT.Topic) == "" {
		return nil, fmt.Errorf("mqtt.topic must not be empty when mqtt.broker is set")
	}

	return &sanitized, nil
}

// RequireCredentials reports whether the config can talk to the Bot API.
func (c *Config) RequireCredentials() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token must be set (or TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id must be set (or TELEGRAM_CHAT_ID)")
	}
	return nil
}

func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	dir := filepath.Dir(trimmedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	// The file may carry the bot token.
	if err := tmpFile.Chmod(0o600); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, trimmedPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is invalid (allowed: debug, info, warn, error)", s)
	}
}

func (c BatteryConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func (c TelegramConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func (c TelegramConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

func (c TelegramConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c ScheduleConfig) LoopInterval() time.Duration {
	return time.Duration(c.LoopIntervalMs) * time.Millisecond
}

func (c ScheduleConfig) UpdatePollInterval() time.Duration {
	return time.Duration(c.UpdatePollSeconds) * time.Second
}

func (c ScheduleConfig) HourlyCheckInterval() time.Duration {
	return time.Duration(c.HourlyCheckSeconds) * time.Second
}

func (c ScheduleConfig) ErrorSleep() time.Duration {
	return time.Duration(c.ErrorSleepSeconds) * time.Second
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}
