// Package config provides configuration management for tgdrive.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/tgdrive/tgdrive/internal/constants"
)

// Config is the merged client configuration.
//
// Config file location: ~/.config/tgdrive/config
//
// INI format:
//
//	[tgdrive]
//	api_url = http://127.0.0.1:8000/api
//	token = <bearer token>
//	log_level = info
//
//	[uploads]
//	background = false
//	dismiss_delay = 2.5s
//	queue_yield = 100ms
//
//	[proxy]
//	mode = no-proxy
//	host = proxy.example.com
//	port = 8080
//	user =
//	password =
//	no_proxy = localhost,127.0.0.1
//	warmup = false
type Config struct {
	// Backend settings
	APIBaseURL string
	Token      string
	LogLevel   string

	// TokenSource records where Token came from after MergeWithFlags:
	// "flag", "token-file", "config", "environment" or "".
	TokenSource string

	// Upload pipeline
	BackgroundUploads bool
	DismissDelay      time.Duration
	QueueYield        time.Duration

	// Proxy settings
	ProxyMode     string // "no-proxy", "system", "ntlm", "basic"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool
}

// Validation errors
var (
	ErrMissingAPIURL    = errors.New("api_url is required")
	ErrMissingToken     = errors.New("not logged in: run 'tgdrive login' or set TGDRIVE_TOKEN")
	ErrInvalidProxyMode = errors.New("proxy mode must be one of no-proxy, system, ntlm, basic")
	ErrUnknownKey       = errors.New("unknown config key")
)

// NewConfig returns a config populated with defaults.
func NewConfig() *Config {
	return &Config{
		APIBaseURL:   constants.DefaultAPIBaseURL,
		LogLevel:     "info",
		DismissDelay: constants.UploadDismissDelay,
		QueueYield:   constants.QueueYieldDelay,
		ProxyMode:    "no-proxy",
	}
}

// Load reads configuration from an INI file. A missing file yields the
// defaults and no error; a malformed one is an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	main := iniFile.Section("tgdrive")
	cfg.APIBaseURL = main.Key("api_url").MustString(cfg.APIBaseURL)
	cfg.Token = strings.TrimSpace(main.Key("token").String())
	cfg.LogLevel = main.Key("log_level").MustString(cfg.LogLevel)

	uploads := iniFile.Section("uploads")
	cfg.BackgroundUploads = uploads.Key("background").MustBool(false)
	cfg.DismissDelay = uploads.Key("dismiss_delay").MustDuration(cfg.DismissDelay)
	cfg.QueueYield = uploads.Key("queue_yield").MustDuration(cfg.QueueYield)

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(0)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.ProxyPassword = proxy.Key("password").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()
	cfg.ProxyWarmup = proxy.Key("warmup").MustBool(false)

	return cfg, nil
}

// Save writes the configuration to an INI file, creating parent directories.
// The file holds the bearer token, so it is written 0600 via tmp file + rename.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	for _, key := range Keys() {
		section, name, _ := strings.Cut(key, ".")
		value, _ := cfg.Get(key)
		iniFile.Section(section).Key(name).SetValue(value)
	}

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// MergeWithFlags merges the file config with command-line flags, the token
// file and environment variables.
//
// Token priority (highest to lowest):
//  1. --token flag
//  2. token file (~/.config/tgdrive/token)
//  3. config file [tgdrive] token
//  4. TGDRIVE_TOKEN environment variable
//
// API URL priority: --api-url flag, TGDRIVE_API_URL, config file, default.
func (c *Config) MergeWithFlags(token, apiURL, proxyMode, proxyHost string, proxyPort int) {
	c.Token, c.TokenSource = ResolveTokenSource(token, c.Token)

	if envURL := os.Getenv("TGDRIVE_API_URL"); envURL != "" {
		c.APIBaseURL = envURL
	}
	if envProxy := os.Getenv("HTTPS_PROXY"); envProxy != "" && c.ProxyHost == "" {
		c.parseProxyURL(envProxy)
	}

	if apiURL != "" {
		c.APIBaseURL = apiURL
	}
	if proxyMode != "" {
		c.ProxyMode = proxyMode
	}
	if proxyHost != "" {
		c.ProxyHost = proxyHost
	}
	if proxyPort > 0 {
		c.ProxyPort = proxyPort
	}

	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.APIBaseURL != "" && !strings.HasPrefix(c.APIBaseURL, "http") {
		c.APIBaseURL = "https://" + c.APIBaseURL
	}
}

// parseProxyURL parses a proxy URL from environment variable
func (c *Config) parseProxyURL(proxyURL string) {
	proxyURL = strings.TrimPrefix(proxyURL, "http://")
	proxyURL = strings.TrimPrefix(proxyURL, "https://")

	host, port, found := strings.Cut(proxyURL, ":")
	c.ProxyHost = host
	if found {
		if p, err := strconv.Atoi(strings.TrimRight(port, "/")); err == nil {
			c.ProxyPort = p
		}
	}
	if c.ProxyHost != "" && (c.ProxyMode == "no-proxy" || c.ProxyMode == "") {
		c.ProxyMode = "system"
	}
}

// Validate checks if the configuration is usable for API calls.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return ErrMissingAPIURL
	}
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	if !validProxyMode(c.ProxyMode) {
		return ErrInvalidProxyMode
	}
	return nil
}

func validProxyMode(mode string) bool {
	switch strings.ToLower(mode) {
	case "", "no-proxy", "system", "ntlm", "basic":
		return true
	}
	return false
}

// Keys lists the settable keys as "section.name", in file order.
func Keys() []string {
	return []string{
		"tgdrive.api_url",
		"tgdrive.token",
		"tgdrive.log_level",
		"uploads.background",
		"uploads.dismiss_delay",
		"uploads.queue_yield",
		"proxy.mode",
		"proxy.host",
		"proxy.port",
		"proxy.user",
		"proxy.password",
		"proxy.no_proxy",
		"proxy.warmup",
	}
}

// Get returns the string form of a key as it would be written to the file.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "tgdrive.api_url":
		return c.APIBaseURL, nil
	case "tgdrive.token":
		return c.Token, nil
	case "tgdrive.log_level":
		return c.LogLevel, nil
	case "uploads.background":
		return strconv.FormatBool(c.BackgroundUploads), nil
	case "uploads.dismiss_delay":
		return c.DismissDelay.String(), nil
	case "uploads.queue_yield":
		return c.QueueYield.String(), nil
	case "proxy.mode":
		return c.ProxyMode, nil
	case "proxy.host":
		return c.ProxyHost, nil
	case "proxy.port":
		if c.ProxyPort == 0 {
			return "", nil
		}
		return strconv.Itoa(c.ProxyPort), nil
	case "proxy.user":
		return c.ProxyUser, nil
	case "proxy.password":
		return c.ProxyPassword, nil
	case "proxy.no_proxy":
		return c.NoProxy, nil
	case "proxy.warmup":
		return strconv.FormatBool(c.ProxyWarmup), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// Set parses value into the field named by key.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case "tgdrive.api_url":
		c.APIBaseURL = value
	case "tgdrive.token":
		c.Token = value
	case "tgdrive.log_level":
		c.LogLevel = value
	case "uploads.background":
		c.BackgroundUploads, err = strconv.ParseBool(value)
	case "uploads.dismiss_delay":
		c.DismissDelay, err = parseNonNegativeDuration(value)
	case "uploads.queue_yield":
		c.QueueYield, err = parseNonNegativeDuration(value)
	case "proxy.mode":
		if !validProxyMode(value) {
			return ErrInvalidProxyMode
		}
		c.ProxyMode = strings.ToLower(value)
	case "proxy.host":
		c.ProxyHost = value
	case "proxy.port":
		if value == "" {
			c.ProxyPort = 0
		} else {
			c.ProxyPort, err = strconv.Atoi(value)
		}
	case "proxy.user":
		c.ProxyUser = value
	case "proxy.password":
		c.ProxyPassword = value
	case "proxy.no_proxy":
		c.NoProxy = value
	case "proxy.warmup":
		c.ProxyWarmup, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("%w: %s (valid keys: %s)", ErrUnknownKey, key, strings.Join(sortedKeys(), ", "))
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func parseNonNegativeDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative")
	}
	return d, nil
}

func sortedKeys() []string {
	keys := Keys()
	sort.Strings(keys)
	return keys
}
