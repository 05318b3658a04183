package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cptspacemanspiff/battery-notifier/internal/config"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll(%q) error = %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%q) error = %v", path, err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.toml")

	out, err := execute(t, "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("config init output = %q, want path", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Schedule.CriticalThreshold != 15 {
		t.Fatalf("CriticalThreshold = %d, want 15", cfg.Schedule.CriticalThreshold)
	}

	if _, err := execute(t, "config", "init", "--config", path); err == nil {
		t.Fatal("second config init error = nil, want already exists")
	}
	if _, err := execute(t, "config", "init", "--config", path, "--force"); err != nil {
		t.Fatalf("config init --force error = %v", err)
	}
}

func TestStatus_PrintsReport(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "battery")
	for name, value := range map[string]string{
		"capacity":    "58\n",
		"status":      "Discharging\n",
		"temp":        "287\n",
		"charge_type": "N/A\n",
		"health":      "Good\n",
		"current_now": "-410\n",
	} {
		writeTestFile(t, filepath.Join(root, name), value)
	}

	cfgPath := filepath.Join(dir, "config.toml")
	writeTestFile(t, cfgPath, "[battery]\nroot = \""+root+"\"\n")

	out, err := execute(t, "status", "--config", cfgPath)
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{
		"• Charge Level: 58%",
		"• Charging State: Not connected",
		"• Status: Discharging",
		"• Temperature: 28.7°C",
		"• Health: Good condition",
		"• Current: -410 µA",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output = %q, want %q", out, want)
		}
	}

	out, err = execute(t, "status", "--json", "--config", cfgPath)
	if err != nil {
		t.Fatalf("status --json error = %v", err)
	}
	if !strings.Contains(out, `"capacity": "58"`) {
		t.Fatalf("status --json output = %q, want capacity", out)
	}
}

func TestStatus_MissingExplicitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	if _, err := execute(t, "status", "--config", path); err == nil {
		t.Fatal("status error = nil, want missing config error")
	}
}

func TestSend_RequiresCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	writeTestFile(t, cfgPath, "[telegram]\nchat_id = \"1\"\n")

	_, err := execute(t, "send", "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Fatalf("send error = %v, want missing token", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Fatalf("version output = %q, want %q", out, version)
	}
}

type countingCloser struct{ n int }

func (c *countingCloser) Close() error {
	c.n++
	return os.ErrClosed
}

func TestCloseQuietly(t *testing.T) {
	closeQuietly(nil)

	c := &countingCloser{}
	closeQuietly(c)
	if c.n != 1 {
		t.Fatalf("Close calls = %d, want 1", c.n)
	}
}
