// Package config loads configuration for the focusguard daemon.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "/etc/focusguard/focusguard.conf"
	configEnvVar      = "FOCUSGUARD_CONFIG"
)

// Config contains all runtime options required by the focusguard daemon.
type Config struct {
	Hosts    HostsConfig    `mapstructure:"hosts"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	DNSProxy DNSProxyConfig `mapstructure:"dnsproxy"`
	Sweep    SweepConfig    `mapstructure:"procsweep"`
}

// HostsConfig holds hosts file settings.
type HostsConfig struct {
	Path            string `mapstructure:"path"`
	BackupDir       string `mapstructure:"backup_dir"`
	RedirectAddress string `mapstructure:"redirect_address"`
	MaxBackups      int    `mapstructure:"max_backups"`
	MaxDomainLength int    `mapstructure:"max_domain_length"`
	MaxDomainDots   int    `mapstructure:"max_domain_dots"`
	Protect         bool   `mapstructure:"protect"`
}

// PolicyConfig holds policy store settings.
type PolicyConfig struct {
	Path string `mapstructure:"path"`
}

// MonitorConfig holds reconciliation loop settings.
type MonitorConfig struct {
	Interval    time.Duration `mapstructure:"-"`
	SettleDelay time.Duration `mapstructure:"-"`
	Watch       bool          `mapstructure:"watch"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DNSProxyConfig holds the optional local resolver settings.
type DNSProxyConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Listen    string   `mapstructure:"listen"`
	Upstreams []string `mapstructure:"upstreams"`
}

// SweepConfig holds the optional process sweep settings.
type SweepConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"-"`
	Processes []string      `mapstructure:"processes"`
}

// ValidateLogLevel ensures the user-provided log level matches the supported set.
func ValidateLogLevel(level string) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(level)] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", level)
	}
	return nil
}

// ValidateAddress confirms that an address string has a valid host and UDP port.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if port == "" {
		return errors.New("invalid port")
	}
	if err != nil {
		return fmt.Errorf("invalid address format %s: %w", addr, err)
	}
	if ip := net.ParseIP(host); ip == nil {
		return fmt.Errorf("invalid IP address: %s", host)
	}
	if _, err := net.LookupPort("udp", port); err != nil {
		return fmt.Errorf("invalid port: %s", port)
	}
	return nil
}

// ParseUpstream adds the default DNS port when an upstream is provided without one.
func ParseUpstream(upstream string) string {
	if !strings.Contains(upstream, ":") {
		return upstream + ":53"
	}
	return upstream
}

// Setup loads the TOML configuration file and produces a Config instance. A
// missing config file is not an error; defaults apply.
func Setup() (*Config, error) {
	configPath := defaultConfigPath
	if fromEnv := strings.TrimSpace(os.Getenv(configEnvVar)); fromEnv != "" {
		configPath = fromEnv
	}
	return Load(configPath)
}

// Load reads configuration from an explicit path.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var err error
	cfg.Monitor.Interval, err = time.ParseDuration(v.GetString("monitor.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid monitor.interval: %w", err)
	}
	cfg.Monitor.SettleDelay, err = time.ParseDuration(v.GetString("monitor.settle_delay"))
	if err != nil {
		return nil, fmt.Errorf("invalid monitor.settle_delay: %w", err)
	}
	cfg.Sweep.Interval, err = time.ParseDuration(v.GetString("procsweep.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid procsweep.interval: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hosts.path", defaultHostsPath())
	v.SetDefault("hosts.backup_dir", defaultBackupDir())
	v.SetDefault("hosts.redirect_address", "127.0.0.1")
	v.SetDefault("hosts.max_backups", 3)
	v.SetDefault("hosts.max_domain_length", 50)
	v.SetDefault("hosts.max_domain_dots", 6)
	v.SetDefault("hosts.protect", false)
	v.SetDefault("policy.path", defaultPolicyPath())
	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.settle_delay", "5s")
	v.SetDefault("monitor.watch", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "stdout")
	v.SetDefault("dnsproxy.enabled", false)
	v.SetDefault("dnsproxy.listen", "127.0.0.1:53")
	v.SetDefault("dnsproxy.upstreams", []string{"1.1.1.1", "8.8.8.8"})
	v.SetDefault("procsweep.enabled", false)
	v.SetDefault("procsweep.interval", "15s")
}

func defaultHostsPath() string {
	if runtime.GOOS == "windows" {
		return `C:\Windows\System32\drivers\etc\hosts`
	}
	return "/etc/hosts"
}

func defaultBackupDir() string {
	if runtime.GOOS == "windows" {
		return `C:\ProgramData\focusguard\backups`
	}
	return "/var/backups/focusguard"
}

func defaultPolicyPath() string {
	if runtime.GOOS == "windows" {
		return `C:\ProgramData\focusguard\policy.json`
	}
	return "/var/lib/focusguard/policy.json"
}

func validateConfig(cfg *Config) error {
	if err := ValidateLogLevel(cfg.Logging.Level); err != nil {
		return err
	}

	if cfg.Hosts.Path == "" {
		return errors.New("hosts.path is required")
	}
	if ip := net.ParseIP(cfg.Hosts.RedirectAddress); ip == nil {
		return fmt.Errorf("invalid hosts.redirect_address: %s", cfg.Hosts.RedirectAddress)
	}
	if cfg.Hosts.MaxBackups < 1 {
		return errors.New("hosts.max_backups must be >= 1")
	}
	if cfg.Hosts.MaxDomainLength < 1 || cfg.Hosts.MaxDomainDots < 1 {
		return errors.New("hosts corruption thresholds must be >= 1")
	}

	if cfg.Policy.Path == "" {
		return errors.New("policy.path is required")
	}

	if cfg.Monitor.Interval <= 0 {
		return errors.New("monitor.interval must be positive")
	}
	if cfg.Monitor.SettleDelay < 0 {
		return errors.New("monitor.settle_delay must be >= 0")
	}

	if cfg.DNSProxy.Enabled {
		if err := ValidateAddress(cfg.DNSProxy.Listen); err != nil {
			return fmt.Errorf("invalid dnsproxy.listen: %w", err)
		}
		if len(cfg.DNSProxy.Upstreams) == 0 {
			return errors.New("dnsproxy.upstreams must contain at least one entry")
		}
		parsed := make([]string, len(cfg.DNSProxy.Upstreams))
		for i, addr := range cfg.DNSProxy.Upstreams {
			withPort := ParseUpstream(addr)
			if err := ValidateAddress(withPort); err != nil {
				return fmt.Errorf("invalid upstream address %s: %w", addr, err)
			}
			parsed[i] = withPort
		}
		cfg.DNSProxy.Upstreams = parsed
	}

	if cfg.Sweep.Enabled {
		if cfg.Sweep.Interval <= 0 {
			return errors.New("procsweep.interval must be positive")
		}
		if len(cfg.Sweep.Processes) == 0 {
			return errors.New("procsweep.processes must contain at least one entry")
		}
	}

	return nil
}
