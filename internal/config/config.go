// Package config loads the agent's YAML configuration document: the global
// policy record (download directory, MIME allow-list, size limits, idle
// timeouts) plus the per-server IRC records it dials out to.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document: global policy plus the
// per-server records the agent dials out to.
type Config struct {
	Servers              map[string]ServerConfig `yaml:"servers"`
	DefaultServerConfig  *ServerConfig           `yaml:"default_server_config"`
	DefaultDownloadPath  string                  `yaml:"default_download_path"`
	AllowedMimetypes     []string                `yaml:"allowed_mimetypes"`
	MaxFileSize          int64                   `yaml:"max_file_size"`
	ServerIdleTimeout    time.Duration           `yaml:"server_idle_timeout"`
	ChannelIdleTimeout   time.Duration           `yaml:"channel_idle_timeout"`
	ResumeTimeout        time.Duration           `yaml:"resume_timeout"`
	TransferListTimeout  time.Duration           `yaml:"transfer_list_timeout"`
	IncompleteSuffix     string                  `yaml:"incomplete_suffix"`
	AllowPrivateIPs      bool                    `yaml:"allow_private_ips"`
	SSendMap             []string                `yaml:"ssend_map"`
	DownloadRateLimitKBs int64                   `yaml:"download_rate_limit_kbps"`
	DiskFreeGuard        DiskFreeGuard           `yaml:"disk_free_guard"`
	Archive              ArchiveConfig           `yaml:"archive"`
	Logging              LoggingConfig           `yaml:"logging"`
	SessionLogDir        string                  `yaml:"session_log_dir"`

	// resolved, not part of the YAML document
	MaxFileSizeRaw int64 `yaml:"-"`
}

// DiskFreeGuard gates new transfers when the download volume is low on
// space.
type DiskFreeGuard struct {
	Enabled     bool  `yaml:"enabled"`
	MinFreeMiB  int64 `yaml:"min_free_mib"`
	CheckPeriod time.Duration `yaml:"check_period"`
}

// ArchiveConfig enables optional post-completion upload of received files to
// S3. Disabled unless S3Bucket is set.
type ArchiveConfig struct {
	S3Bucket        string `yaml:"s3_bucket"`
	S3Prefix        string `yaml:"s3_prefix"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LoggingConfig controls the slog handler created by internal/logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// ServerConfig is one entry of the "servers" map.
type ServerConfig struct {
	Address          string              `yaml:"address"`
	Port             int                 `yaml:"port"`
	TLS              bool                `yaml:"tls"`
	VerifyTLS        bool                `yaml:"verify_tls"`
	Nick             string              `yaml:"nick"`
	RandomNick       bool                `yaml:"random_nick"`
	NickservPassword string              `yaml:"nickserv_password"`
	Channels         []string            `yaml:"channels"`
	AlsoJoin         map[string][]string `yaml:"also_join"`
	RewriteToSSend   []string            `yaml:"rewrite_to_ssend"`
}

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Servers) == 0 && c.DefaultServerConfig == nil {
		return fmt.Errorf("servers must have at least one entry, or default_server_config must be set")
	}

	if c.DefaultDownloadPath == "" {
		c.DefaultDownloadPath = "./downloads"
	}

	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	c.MaxFileSizeRaw = c.MaxFileSize

	if c.ServerIdleTimeout <= 0 {
		c.ServerIdleTimeout = 30 * time.Minute
	}
	if c.ChannelIdleTimeout <= 0 {
		c.ChannelIdleTimeout = 30 * time.Minute
	}
	if c.ResumeTimeout <= 0 {
		c.ResumeTimeout = 30 * time.Second
	}
	if c.TransferListTimeout <= 0 {
		c.TransferListTimeout = 86400 * time.Second
	}

	for name, sc := range c.Servers {
		if sc.Port == 0 {
			if sc.TLS {
				sc.Port = 6697
			} else {
				sc.Port = 6667
			}
		}
		if sc.Nick == "" {
			return fmt.Errorf("servers.%s.nick is required", name)
		}
		c.Servers[name] = sc
	}

	if c.DiskFreeGuard.Enabled && c.DiskFreeGuard.CheckPeriod <= 0 {
		c.DiskFreeGuard.CheckPeriod = 30 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

// ResolveServer returns the configuration to use for a given server name,
// falling back to DefaultServerConfig when the name is not listed, and
// erroring when neither is available.
func (c *Config) ResolveServer(name string) (ServerConfig, error) {
	if sc, ok := c.Servers[name]; ok {
		return sc, nil
	}
	if c.DefaultServerConfig != nil {
		sc := *c.DefaultServerConfig
		sc.Address = name
		if sc.Port == 0 {
			if sc.TLS {
				sc.Port = 6697
			} else {
				sc.Port = 6667
			}
		}
		return sc, nil
	}
	return ServerConfig{}, fmt.Errorf("No configuration found for server: %s", name)
}

// IsSSendNick reports whether outbound xdcc send to this nickname should be
// rewritten to ssend, per the ssend_map configuration.
func (c *Config) IsSSendNick(nick string) bool {
	for _, n := range c.SSendMap {
		if strings.EqualFold(n, nick) {
			return true
		}
	}
	return false
}

// ParseByteSize converts human-readable sizes ("256mb", "1gb") to bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
