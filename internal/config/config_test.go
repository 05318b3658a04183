package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Battery.Root != "/sys/class/power_supply/battery" {
		t.Fatalf("unexpected Battery.Root: %q", cfg.Battery.Root)
	}
	if cfg.Battery.ReadAttempts != 3 || cfg.Telegram.MaxAttempts != 3 {
		t.Fatalf("unexpected attempts: read=%d send=%d", cfg.Battery.ReadAttempts, cfg.Telegram.MaxAttempts)
	}
	if cfg.Telegram.RetryDelay() != 5*time.Second {
		t.Fatalf("unexpected RetryDelay: %v", cfg.Telegram.RetryDelay())
	}
	if cfg.Telegram.ConnectTimeout() != 10*time.Second || cfg.Telegram.RequestTimeout() != 30*time.Second {
		t.Fatalf("unexpected timeouts: connect=%v request=%v", cfg.Telegram.ConnectTimeout(), cfg.Telegram.RequestTimeout())
	}
	if cfg.Telegram.RefreshData != "refresh_battery" {
		t.Fatalf("unexpected RefreshData: %q", cfg.Telegram.RefreshData)
	}
	if cfg.Schedule.ReportMinute != 0 {
		t.Fatalf("unexpected ReportMinute: %d", cfg.Schedule.ReportMinute)
	}
	if cfg.Schedule.LoopInterval() != 200*time.Millisecond {
		t.Fatalf("unexpected LoopInterval: %v", cfg.Schedule.LoopInterval())
	}
	if cfg.Schedule.ErrorSleep() != 30*time.Second {
		t.Fatalf("unexpected ErrorSleep: %v", cfg.Schedule.ErrorSleep())
	}
	if cfg.Schedule.CriticalThreshold != 15 {
		t.Fatalf("unexpected CriticalThreshold: %d", cfg.Schedule.CriticalThreshold)
	}
	if cfg.Storage.StateDBPath != "" {
		t.Fatalf("unexpected StateDBPath: %q", cfg.Storage.StateDBPath)
	}
}

func TestLoad_OverridesAndKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `
[telegram]
token = "123:abc"
chat_id = "42"
api_url = "http://127.0.0.1:8081/"

[schedule]
report_minute = 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.ChatID != "42" {
		t.Fatalf("credentials = %q/%q, want 123:abc/42", cfg.Telegram.Token, cfg.Telegram.ChatID)
	}
	if cfg.Telegram.APIURL != "http://127.0.0.1:8081" {
		t.Fatalf("APIURL = %q, want trailing slash trimmed", cfg.Telegram.APIURL)
	}
	if cfg.Schedule.ReportMinute != 30 {
		t.Fatalf("ReportMinute = %d, want 30", cfg.Schedule.ReportMinute)
	}
	if cfg.Schedule.CriticalThreshold != 15 {
		t.Fatalf("CriticalThreshold = %d, want default 15", cfg.Schedule.CriticalThreshold)
	}
	if cfg.Log.File != "/var/log/battery-notifier.log" {
		t.Fatalf("Log.File = %q, want default", cfg.Log.File)
	}
	if err := cfg.RequireCredentials(); err != nil {
		t.Fatalf("RequireCredentials() error = %v", err)
	}
}

func TestLoad_EnvOverridesCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "env-chat")
	path := writeTempConfig(t, `
[telegram]
token = "file-token"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Telegram.Token != "env-token" || cfg.Telegram.ChatID != "env-chat" {
		t.Fatalf("credentials = %q/%q, want env values", cfg.Telegram.Token, cfg.Telegram.ChatID)
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.RequireCredentials(); err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Fatalf("RequireCredentials() error = %v, want token error", err)
	}
	cfg.Telegram.Token = "t"
	if err := cfg.RequireCredentials(); err == nil || !strings.Contains(err.Error(), "telegram.chat_id") {
		t.Fatalf("RequireCredentials() error = %v, want chat_id error", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Fatal("Load() error = nil, want missing file error")
	}
	if !os.IsNotExist(err) {
		t.Fatalf("Load() error = %v, want not-exist error", err)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTempConfig(t, "not = [valid")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() error = nil, want TOML parse error")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name       string
		contents   string
		wantErrSub string
	}{
		{
			name: "report_minute out of range",
			contents: `
[schedule]
report_minute = 60
`,
			wantErrSub: "schedule.report_minute must be between 0 and 59",
		},
		{
			name: "read_attempts must be positive",
			contents: `
[battery]
read_attempts = 0
`,
			wantErrSub: "battery.read_attempts must be between 1 and 10",
		},
		{
			name: "critical_threshold above 100",
			contents: `
[schedule]
critical_threshold = 101
`,
			wantErrSub: "schedule.critical_threshold must be between 0 and 100",
		},
		{
			name: "relative battery root",
			contents: `
[battery]
root = "sys/class/power_supply/battery"
`,
			wantErrSub: "battery.root must be an absolute path",
		},
		{
			name: "request timeout shorter than long poll",
			contents: `
[telegram]
request_timeout_seconds = 10
poll_timeout_seconds = 10
`,
			wantErrSub: "must exceed telegram.poll_timeout_seconds",
		},
		{
			name: "bad api url",
			contents: `
[telegram]
api_url = "ftp://example.com"
`,
			wantErrSub: "telegram.api_url must be an http(s) URL",
		},
		{
			name: "bad log level",
			contents: `
[log]
level = "loud"
`,
			wantErrSub: "log.level",
		},
		{
			name: "mqtt broker without topic",
			contents: `
[mqtt]
broker = "localhost"
topic = ""
`,
			wantErrSub: "mqtt.topic must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.contents)

			_, err := Load(path)
			if err == nil {
				t.Fatalf("Load() error = nil, want error containing %q", tt.wantErrSub)
			}
			if !strings.Contains(err.Error(), tt.wantErrSub) {
				t.Fatalf("Load() error = %q, want contains %q", err.Error(), tt.wantErrSub)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := DefaultConfig()
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.ChatID = "99"
	cfg.Schedule.ReportMinute = 15
	cfg.Storage.StateDBPath = "/var/lib/battery-notifier/state.db"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved config: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("saved config mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Schedule.ReportMinute != 15 || loaded.Telegram.ChatID != "99" {
		t.Fatalf("loaded = %+v, want saved values", loaded)
	}
	if loaded.Storage.StateDBPath != "/var/lib/battery-notifier/state.db" {
		t.Fatalf("StateDBPath = %q", loaded.Storage.StateDBPath)
	}
}

func TestSave_RejectsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schedule.ReportMinute = -1
	if err := Save(filepath.Join(t.TempDir(), "config.toml"), cfg); err == nil {
		t.Fatal("Save() error = nil, want validation error")
	}
	if err := Save("  ", DefaultConfig()); err == nil {
		t.Fatal("Save() error = nil, want empty path error")
	}
}
