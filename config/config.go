package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"go_mini_ftp/constants"
	"go_mini_ftp/networking"
	"go_mini_ftp/networking/replycode"
)

var ErrInvalidPort = errors.New("config: port must be numeric and between 1 and 65535")

type Config struct {
	Listen      string
	Port        int
	Root        string
	Credentials string
	ServerName  string
	Version     string
	IdleTimeout time.Duration
	MaxSessions int
	DSCP        int
	Archives    bool
	MetricsAddr string
	LogLevel    string
}

type fileConfig struct {
	Listen      string `toml:"listen"`
	Port        int    `toml:"port"`
	Root        string `toml:"root"`
	Credentials string `toml:"credentials"`
	ServerName  string `toml:"server_name"`
	Version     string `toml:"version"`
	IdleTimeout string `toml:"idle_timeout"`
	MaxSessions int    `toml:"max_sessions"`
	DSCP        int    `toml:"dscp"`
	Archives    bool   `toml:"archives"`
	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`
}

func Default() Config {
	return Config{
		Listen:      constants.DEFAULT_LISTEN,
		Root:        constants.DEFAULT_ROOT,
		Credentials: constants.DEFAULT_USERS_FILE,
		ServerName:  constants.DEFAULT_SERVER_NAME,
		Version:     constants.DEFAULT_VERSION,
		IdleTimeout: constants.DEFAULT_IDLE,
		MaxSessions: constants.DEFAULT_SESSIONS,
		DSCP:        constants.DEFAULT_DSCP,
		Archives:    true,
		LogLevel:    "info",
	}
}

// Load decodes a TOML file over the defaults. Keys absent from the file
// keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := cfg.Merge(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge overlays the keys defined in a TOML file onto cfg
func (cfg *Config) Merge(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("root") {
		cfg.Root = strings.TrimSpace(raw.Root)
	}
	if meta.IsDefined("credentials") {
		cfg.Credentials = strings.TrimSpace(raw.Credentials)
	}
	if meta.IsDefined("server_name") {
		cfg.ServerName = strings.TrimSpace(raw.ServerName)
	}
	if meta.IsDefined("version") {
		cfg.Version = strings.TrimSpace(raw.Version)
	}
	if meta.IsDefined("idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleTimeout))
		if err != nil {
			return fmt.Errorf("parse idle_timeout: %w", err)
		}
		cfg.IdleTimeout = d
	}
	if meta.IsDefined("max_sessions") {
		cfg.MaxSessions = raw.MaxSessions
	}
	if meta.IsDefined("dscp") {
		cfg.DSCP = raw.DSCP
	}
	if meta.IsDefined("archives") {
		cfg.Archives = raw.Archives
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return nil
}

// Validate reports the first setting the server cannot start with
func (cfg Config) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, cfg.Port)
	}
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return fmt.Errorf("invalid root folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid root folder: %s is not a directory", cfg.Root)
	}
	if strings.TrimSpace(cfg.Credentials) == "" {
		return fmt.Errorf("credentials file is required")
	}
	if strings.TrimSpace(cfg.ServerName) == "" || strings.ContainsAny(cfg.ServerName, " \r\n") {
		return fmt.Errorf("server_name must be a single non-empty token")
	}
	if strings.TrimSpace(cfg.Version) == "" || strings.ContainsAny(cfg.Version, " \r\n") {
		return fmt.Errorf("version must be a single non-empty token")
	}
	if _, err := networking.FormatReply(replycode.SERVICE_READY, cfg.ServerName, cfg.Version); err != nil {
		return fmt.Errorf("server_name and version do not fit the greeting: %w", err)
	}
	if cfg.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must not be negative")
	}
	if cfg.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1")
	}
	if cfg.DSCP < 0 || cfg.DSCP > 63 {
		return fmt.Errorf("dscp must be between 0 and 63")
	}
	return nil
}

// Addr returns the listen address
func (cfg Config) Addr() string {
	return net.JoinHostPort(cfg.Listen, strconv.Itoa(cfg.Port))
}

// ParsePort accepts only an all-digit port between 1 and 65535
func ParsePort(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidPort)
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPort, raw)
		}
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, raw)
	}
	return port, nil
}
