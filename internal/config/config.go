// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the greeting server.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sebhosting/seb-ultra-stack/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultPort is used when PORT is unset or not a valid TCP port.
	DefaultPort = 5000

	// DefaultJSONLimit is the maximum accepted JSON body size (100 KiB).
	DefaultJSONLimit = 100 * 1024

	// DefaultCORSMaxAge of 0 omits Access-Control-Max-Age from preflight responses.
	DefaultCORSMaxAge = 0

	// Environment variable names.
	EnvPort          = "PORT"
	EnvHost          = "SEB_HOST"
	EnvConfigPath    = "SEB_CONFIG"
	EnvLogRequests   = "SEB_LOG_REQUESTS"
	EnvSecureHeaders = "SEB_SECURITY_HEADERS"
	EnvProxies       = "SEB_TRUSTED_PROXIES"
)

// DefaultTrustedProxies are loopback and private ranges, where a reverse proxy
// in front of the server usually sits.
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
}

// =============================================================================
// TYPES
// =============================================================================

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig `toml:"server" json:"server"`
	CORS   CORSConfig   `toml:"cors" json:"cors"`
	JSON   JSONConfig   `toml:"json" json:"json"`
	Log    LogConfig    `toml:"log" json:"log"`

	// path is the file this config was loaded from, empty for env-only configs.
	path string
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	// Host is the bind host. Empty binds all interfaces.
	Host string `toml:"host" json:"host"`

	// Port is the TCP port to bind.
	Port int `toml:"port" json:"port"`

	ReadTimeoutSecs     int `toml:"read_timeout_secs" json:"read_timeout_secs"`
	WriteTimeoutSecs    int `toml:"write_timeout_secs" json:"write_timeout_secs"`
	IdleTimeoutSecs     int `toml:"idle_timeout_secs" json:"idle_timeout_secs"`
	ShutdownTimeoutSecs int `toml:"shutdown_timeout_secs" json:"shutdown_timeout_secs"`

	// SecurityHeaders adds nosniff/frame/referrer headers to every response.
	SecurityHeaders bool `toml:"security_headers" json:"security_headers"`

	// TrustedProxies lists the CIDRs (or bare IPs) whose X-Forwarded-For and
	// X-Real-IP headers are believed. An empty list trusts nobody.
	TrustedProxies []string `toml:"trusted_proxies" json:"trusted_proxies"`
}

// CORSConfig holds the cross-origin policy.
type CORSConfig struct {
	AllowedOrigins   []string `toml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods   []string `toml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders   []string `toml:"allowed_headers" json:"allowed_headers"`
	ExposedHeaders   []string `toml:"exposed_headers" json:"exposed_headers"`
	AllowCredentials bool     `toml:"allow_credentials" json:"allow_credentials"`
	MaxAge           int      `toml:"max_age" json:"max_age"`
}

// JSONConfig holds request body parsing settings.
type JSONConfig struct {
	// LimitBytes is the largest body that will be read. 0 disables the limit.
	LimitBytes int64 `toml:"limit_bytes" json:"limit_bytes"`

	// Strict accepts only objects and arrays at the top level.
	Strict bool `toml:"strict" json:"strict"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Requests enables one log line per request.
	Requests bool `toml:"requests" json:"requests"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "",
			Port:                DefaultPort,
			ReadTimeoutSecs:     30,
			WriteTimeoutSecs:    30,
			IdleTimeoutSecs:     120,
			ShutdownTimeoutSecs: 10,
			SecurityHeaders:     true,
			TrustedProxies:      append([]string(nil), DefaultTrustedProxies...),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
			AllowedHeaders: []string{"*"},
			MaxAge:         DefaultCORSMaxAge,
		},
		JSON: JSONConfig{
			LimitBytes: DefaultJSONLimit,
			Strict:     true,
		},
		Log: LogConfig{
			Requests: true,
		},
	}
}

// SetDefaults fills zero values left by a partial file. JSON.LimitBytes is
// left alone: 0 there means no limit.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = d.Server.ReadTimeoutSecs
	}
	if c.Server.WriteTimeoutSecs == 0 {
		c.Server.WriteTimeoutSecs = d.Server.WriteTimeoutSecs
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = d.Server.IdleTimeoutSecs
	}
	if c.Server.ShutdownTimeoutSecs == 0 {
		c.Server.ShutdownTimeoutSecs = d.Server.ShutdownTimeoutSecs
	}
	if c.Server.TrustedProxies == nil {
		c.Server.TrustedProxies = d.Server.TrustedProxies
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = d.CORS.AllowedOrigins
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = d.CORS.AllowedMethods
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = d.CORS.AllowedHeaders
	}
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load builds the configuration from defaults, the optional SEB_CONFIG file
// and environment overrides.
func Load() (*Config, error) {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return LoadFromPath(path)
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads a TOML file, or a JSON file when the name ends in .json,
// on top of the defaults and then applies environment overrides.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	cfg.path = path

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg. Keys missing from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	for _, key := range md.Undecoded() {
		log.Printf("CONFIG_WARNING | unknown_key=%s file=%s", key.String(), path)
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variables on top of the current values.
//
// Supported environment variables:
//   - PORT: TCP port; ignored with a warning when not an integer in 1-65535
//   - SEB_HOST: bind host (a plain HOST variable is ignored)
//   - SEB_LOG_REQUESTS: "1"/"true" enables request logging, "0"/"false" disables it
//   - SEB_SECURITY_HEADERS: same syntax, toggles security headers
//   - SEB_TRUSTED_PROXIES: comma-separated CIDRs; "none" trusts nobody
func (c *Config) ApplyEnvOverrides() {
	if raw, ok := os.LookupEnv(EnvPort); ok && strings.TrimSpace(raw) != "" {
		if port, err := ParsePort(raw); err == nil {
			c.Server.Port = port
		} else {
			log.Printf("CONFIG_WARNING | env=%s value=%q error=%v using=%d", EnvPort, raw, err, c.Server.Port)
		}
	}

	if host, ok := os.LookupEnv(EnvHost); ok {
		c.Server.Host = strings.TrimSpace(host)
	}

	if raw := os.Getenv(EnvLogRequests); raw != "" {
		if v, ok := util.ParseBool(raw); ok {
			c.Log.Requests = v
		}
	}

	if raw := os.Getenv(EnvSecureHeaders); raw != "" {
		if v, ok := util.ParseBool(raw); ok {
			c.Server.SecurityHeaders = v
		}
	}

	if raw := strings.TrimSpace(os.Getenv(EnvProxies)); raw != "" {
		proxies := []string{}
		if !strings.EqualFold(raw, "none") {
			for _, part := range strings.Split(raw, ",") {
				if part = strings.TrimSpace(part); part != "" {
					proxies = append(proxies, part)
				}
			}
		}
		c.Server.TrustedProxies = proxies
	}
}

// ParseProxyPrefix parses a trusted proxy entry. A bare address is taken as a
// single-host prefix.
func ParseProxyPrefix(raw string) (netip.Prefix, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "/") {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return netip.Prefix{}, err
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// ParsePort parses a TCP port number.
func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("not an integer: %w", err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", c.Server.Port),
		})
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 ||
		c.Server.IdleTimeoutSecs < 0 || c.Server.ShutdownTimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.*_timeout_secs",
			Message: "must not be negative",
		})
	}
	for _, entry := range c.Server.TrustedProxies {
		if _, err := ParseProxyPrefix(entry); err != nil {
			errs = append(errs, ValidationError{
				Field:   "server.trusted_proxies",
				Message: fmt.Sprintf("invalid entry %q: %v", entry, err),
			})
		}
	}
	if c.JSON.LimitBytes < 0 {
		errs = append(errs, ValidationError{
			Field:   "json.limit_bytes",
			Message: fmt.Sprintf("must not be negative, got %d", c.JSON.LimitBytes),
		})
	}
	if c.CORS.MaxAge < 0 {
		errs = append(errs, ValidationError{
			Field:   "cors.max_age",
			Message: fmt.Sprintf("must not be negative, got %d", c.CORS.MaxAge),
		})
	}
	if c.CORS.AllowCredentials && c.CORS.AllowsAnyOrigin() {
		errs = append(errs, ValidationError{
			Field:   "cors.allow_credentials",
			Message: `cannot be combined with allowed origin "*"`,
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ReadTimeout returns the read timeout.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSecs) * time.Second
}

// WriteTimeout returns the write timeout.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSecs) * time.Second
}

// IdleTimeout returns the keep-alive idle timeout.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSecs) * time.Second
}

// ShutdownTimeout returns how long graceful shutdown may take.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSecs) * time.Second
}

// AllowsAnyOrigin reports whether the policy is the permissive "*" policy.
func (c CORSConfig) AllowsAnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}
