// Package config loads the proxy's branding, upstream and server settings.
//
// Values are layered: built-in defaults, then an optional YAML or TOML file,
// then environment variables. Command-line flags are applied by the caller.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Color roles used in Target.BrandColors.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Branding describes how the re-served site should look.
type Branding struct {
	SiteName       string `yaml:"site_name" toml:"site_name"`
	LogoURL        string `yaml:"logo_url" toml:"logo_url"`
	PrimaryColor   string `yaml:"primary_color" toml:"primary_color"`
	SecondaryColor string `yaml:"secondary_color" toml:"secondary_color"`
	// Domain is the caller-facing host used for requests that arrive
	// without a Host header.
	Domain string `yaml:"domain" toml:"domain"`
}

// Target describes the upstream booking site.
type Target struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Domain  string `yaml:"domain" toml:"domain"`
	Brand   string `yaml:"brand" toml:"brand"`

	// BrandColors maps upstream #rrggbb colors to RolePrimary or RoleSecondary.
	BrandColors map[string]string `yaml:"brand_colors" toml:"brand_colors"`
}

// Host returns the host[:port] of BaseURL.
func (t Target) Host() string {
	u, err := url.Parse(t.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// TLS reports whether the upstream is reached over https.
func (t Target) TLS() bool {
	return strings.HasPrefix(t.BaseURL, "https://")
}

type Server struct {
	Port      string `yaml:"port" toml:"port"`
	StaticDir string `yaml:"static_dir" toml:"static_dir"`
}

type Proxy struct {
	TimeoutSeconds int   `yaml:"timeout_seconds" toml:"timeout_seconds"`
	MaxBodyBytes   int64 `yaml:"max_body_bytes" toml:"max_body_bytes"`
}

type Log struct {
	Level string `yaml:"level" toml:"level"`
}

type Metrics struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Config is the complete process configuration. It is built once at startup
// and treated as read-only afterwards.
type Config struct {
	Server   Server   `yaml:"server" toml:"server"`
	Branding Branding `yaml:"branding" toml:"branding"`
	Target   Target   `yaml:"target" toml:"target"`
	Proxy    Proxy    `yaml:"proxy" toml:"proxy"`
	Log      Log      `yaml:"log" toml:"log"`
	Metrics  Metrics  `yaml:"metrics" toml:"metrics"`
	Ruleset  string   `yaml:"ruleset" toml:"ruleset"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:      "3001",
			StaticDir: "./static",
		},
		Branding: Branding{
			SiteName:       "Your Travel Agency",
			LogoURL:        "/static/logo.png",
			PrimaryColor:   "#588157",
			SecondaryColor: "#3a5a40",
			Domain:         "your-agency-domain.com",
		},
		Target: Target{
			BaseURL: "https://www.ratehawk.com",
			Domain:  "ratehawk.com",
			Brand:   "RateHawk",
			BrandColors: map[string]string{
				"#1976d2": RolePrimary,
				"#1565c0": RoleSecondary,
				"#2196f3": RolePrimary,
			},
		},
		Log: Log{Level: "info"},
	}
}

// Load builds the configuration from defaults, the file at path (if any) and
// the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.StaticDir, "STATIC_DIR")
	setString(&c.Branding.SiteName, "SITE_NAME")
	setString(&c.Branding.LogoURL, "LOGO_URL")
	setString(&c.Branding.PrimaryColor, "PRIMARY_COLOR")
	setString(&c.Branding.SecondaryColor, "SECONDARY_COLOR")
	setString(&c.Branding.Domain, "TARGET_DOMAIN")
	setString(&c.Target.BaseURL, "UPSTREAM_URL")
	setString(&c.Target.Domain, "UPSTREAM_DOMAIN")
	setString(&c.Target.Brand, "UPSTREAM_BRAND")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Metrics.Addr, "METRICS_ADDR")
	setString(&c.Ruleset, "RULESET")

	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: HTTP_TIMEOUT: %w", err)
		}
		c.Proxy.TimeoutSeconds = n
	}
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: MAX_BODY_BYTES: %w", err)
		}
		c.Proxy.MaxBodyBytes = n
	}
	return nil
}

// Normalize validates the configuration and fills derived fields. It must be
// called again after flags override any value.
func (c *Config) Normalize() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("config: invalid port %q", c.Server.Port)
	}

	c.Target.BaseURL = strings.TrimSuffix(c.Target.BaseURL, "/")
	u, err := url.Parse(c.Target.BaseURL)
	if err != nil {
		return fmt.Errorf("config: target.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: target.base_url must be http or https; got %q", c.Target.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("config: target.base_url has no host: %q", c.Target.BaseURL)
	}
	if c.Target.Domain == "" {
		c.Target.Domain = u.Hostname()
	}
	if c.Branding.SiteName == "" {
		return fmt.Errorf("config: branding.site_name is required")
	}
	if c.Target.Brand == "" {
		return fmt.Errorf("config: target.brand is required")
	}

	for name, v := range map[string]string{
		"branding.primary_color":   c.Branding.PrimaryColor,
		"branding.secondary_color": c.Branding.SecondaryColor,
	} {
		if !hexColor.MatchString(v) {
			return fmt.Errorf("config: %s must be #rrggbb; got %q", name, v)
		}
	}

	colors := make(map[string]string, len(c.Target.BrandColors))
	for k, role := range c.Target.BrandColors {
		if !hexColor.MatchString(k) {
			return fmt.Errorf("config: target.brand_colors key must be #rrggbb; got %q", k)
		}
		role = strings.ToLower(role)
		if role != RolePrimary && role != RoleSecondary {
			return fmt.Errorf("config: target.brand_colors[%s] must be %q or %q; got %q", k, RolePrimary, RoleSecondary, role)
		}
		colors[strings.ToLower(k)] = role
	}
	c.Target.BrandColors = colors

	if c.Proxy.TimeoutSeconds < 0 {
		return fmt.Errorf("config: proxy.timeout_seconds must be non-negative; got %d", c.Proxy.TimeoutSeconds)
	}
	if c.Proxy.MaxBodyBytes < 0 {
		return fmt.Errorf("config: proxy.max_body_bytes must be non-negative; got %d", c.Proxy.MaxBodyBytes)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	case "":
		c.Log.Level = "info"
	default:
		return fmt.Errorf("config: log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	return nil
}

func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}
