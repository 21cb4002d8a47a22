package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

const validConfigYAML = `
default_download_path: /tmp/downloads
max_file_size: 104857600
servers:
  irc.example.org:
    nick: dccbot
    channels: ["#xdcc"]
`

func TestLoad_ExampleFile(t *testing.T) {
	cfgPath := filepath.Join("..", "..", "configs", "dccagent.example.yaml")
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load example config: %v", err)
	}

	if cfg.DefaultDownloadPath != "/var/lib/dccagent/downloads" {
		t.Errorf("expected default_download_path '/var/lib/dccagent/downloads', got %q", cfg.DefaultDownloadPath)
	}
	sc, ok := cfg.Servers["irc.example.org"]
	if !ok {
		t.Fatal("expected servers.irc.example.org to exist")
	}
	if sc.Nick != "dccbot" {
		t.Errorf("expected nick 'dccbot', got %q", sc.Nick)
	}
	if len(sc.Channels) != 1 || sc.Channels[0] != "#xdcc" {
		t.Errorf("unexpected channels: %v", sc.Channels)
	}
	if !cfg.DiskFreeGuard.Enabled {
		t.Error("expected disk_free_guard.enabled true")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfgPath := writeTempConfig(t, "{{invalid yaml}}")
	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_MissingServers(t *testing.T) {
	cfgPath := writeTempConfig(t, "default_download_path: /tmp\n")
	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("expected error when no servers and no default_server_config are set")
	}
}

func TestLoad_DefaultServerConfigAllowsEmptyServers(t *testing.T) {
	content := `
default_server_config:
  nick: dccbot
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultServerConfig == nil || cfg.DefaultServerConfig.Nick != "dccbot" {
		t.Fatalf("expected default_server_config.nick 'dccbot', got %+v", cfg.DefaultServerConfig)
	}
}

func TestLoad_ServerMissingNick(t *testing.T) {
	content := `
servers:
  irc.example.org:
    channels: ["#xdcc"]
`
	cfgPath := writeTempConfig(t, content)
	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("expected error for server with no nick")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfgPath := writeTempConfig(t, validConfigYAML)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServerIdleTimeout != 30*time.Minute {
		t.Errorf("expected default server_idle_timeout 30m, got %s", cfg.ServerIdleTimeout)
	}
	if cfg.ChannelIdleTimeout != 30*time.Minute {
		t.Errorf("expected default channel_idle_timeout 30m, got %s", cfg.ChannelIdleTimeout)
	}
	if cfg.ResumeTimeout != 30*time.Second {
		t.Errorf("expected default resume_timeout 30s, got %s", cfg.ResumeTimeout)
	}
	if cfg.TransferListTimeout != 86400*time.Second {
		t.Errorf("expected default transfer_list_timeout 86400s, got %s", cfg.TransferListTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default logging.level 'info', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected default logging.format 'json', got %q", cfg.Logging.Format)
	}
}

func TestLoad_DefaultDownloadPath(t *testing.T) {
	content := `
servers:
  irc.example.org:
    nick: dccbot
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultDownloadPath != "./downloads" {
		t.Errorf("expected default_download_path './downloads', got %q", cfg.DefaultDownloadPath)
	}
	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("expected default max_file_size 100MiB, got %d", cfg.MaxFileSize)
	}
}

func TestLoad_ServerPortDefaultsByTLS(t *testing.T) {
	content := `
servers:
  plain.example.org:
    nick: dccbot
  tls.example.org:
    nick: dccbot
    tls: true
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Servers["plain.example.org"].Port != 6667 {
		t.Errorf("expected default plaintext port 6667, got %d", cfg.Servers["plain.example.org"].Port)
	}
	if cfg.Servers["tls.example.org"].Port != 6697 {
		t.Errorf("expected default TLS port 6697, got %d", cfg.Servers["tls.example.org"].Port)
	}
}

func TestResolveServer_ExactMatch(t *testing.T) {
	cfgPath := writeTempConfig(t, validConfigYAML)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sc, err := cfg.ResolveServer("irc.example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Nick != "dccbot" {
		t.Errorf("expected nick 'dccbot', got %q", sc.Nick)
	}
}

func TestResolveServer_FallsBackToDefault(t *testing.T) {
	content := `
default_server_config:
  nick: dccbot
  tls: true
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sc, err := cfg.ResolveServer("unlisted.example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Address != "unlisted.example.org" {
		t.Errorf("expected address 'unlisted.example.org', got %q", sc.Address)
	}
	if sc.Port != 6697 {
		t.Errorf("expected default TLS port 6697, got %d", sc.Port)
	}
}

func TestResolveServer_Unconfigured(t *testing.T) {
	cfgPath := writeTempConfig(t, validConfigYAML)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = cfg.ResolveServer("unknown.example.org")
	if err == nil {
		t.Fatal("expected error for unconfigured server with no default")
	}
}

func TestIsSSendNick(t *testing.T) {
	cfg := &Config{SSendMap: []string{"SuperBot"}}
	if !cfg.IsSSendNick("superbot") {
		t.Error("expected case-insensitive match for ssend_map nick")
	}
	if cfg.IsSSendNick("other") {
		t.Error("expected no match for unrelated nick")
	}
}

func TestParseByteSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"100", 100},
		{"1b", 1},
		{"10kb", 10 * 1024},
		{"256mb", 256 * 1024 * 1024},
		{"2gb", 2 * 1024 * 1024 * 1024},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		if err != nil {
			t.Errorf("ParseByteSize(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseByteSize_Invalid(t *testing.T) {
	if _, err := ParseByteSize(""); err == nil {
		t.Error("expected error for empty string")
	}
	if _, err := ParseByteSize("not-a-size"); err == nil {
		t.Error("expected error for unparseable string")
	}
}

func TestDiskFreeGuardDefaultCheckPeriod(t *testing.T) {
	content := validConfigYAML + `
disk_free_guard:
  enabled: true
  min_free_mib: 512
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DiskFreeGuard.CheckPeriod != 30*time.Second {
		t.Errorf("expected default check_period 30s, got %s", cfg.DiskFreeGuard.CheckPeriod)
	}
}
