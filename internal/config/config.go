// Package config loads the sitesearch YAML configuration: the crawlable site
// list, storage location and crawler/search tuning.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
)

// Environment variables that override file values.
const (
	EnvConfigPath = "SITESEARCH_CONFIG"
	EnvDatabase   = "SITESEARCH_DB"
	EnvAddr       = "SITESEARCH_ADDR"
	EnvLogLevel   = "SITESEARCH_LOG_LEVEL"
	EnvWorkers    = "SITESEARCH_WORKERS"
)

// DefaultPath is used when neither --config nor SITESEARCH_CONFIG is set.
const DefaultPath = "sitesearch.yaml"

// Config is the complete sitesearch configuration.
type Config struct {
	Sites    []SiteConfig   `yaml:"sites"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Search   SearchConfig   `yaml:"search"`
	Log      LogConfig      `yaml:"log"`
}

// SiteConfig is one entry of the crawlable universe.
type SiteConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// CrawlerConfig tunes the site crawler.
type CrawlerConfig struct {
	Workers        int           `yaml:"workers"`
	Delay          time.Duration `yaml:"delay"` // minimum gap between fetches of one crawl
	UserAgent      string        `yaml:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxPages       int           `yaml:"max_pages"` // per site, 0 = unlimited
	MaxDepth       int           `yaml:"max_depth"` // 0 = unlimited
	RespectRobots  bool          `yaml:"respect_robots"`
	// BrowserFallback re-fetches pages with too little text through headless Chrome.
	BrowserFallback bool `yaml:"browser_fallback"`
}

// SearchConfig tunes ranking and snippets.
type SearchConfig struct {
	// FrequencyThreshold drops query lemmas present on more pages than this.
	FrequencyThreshold int `yaml:"frequency_threshold"`
	SnippetWindow      int `yaml:"snippet_window"`
	DefaultLimit       int `yaml:"default_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	// File, when set, receives a copy of the log stream.
	File string `yaml:"file"`
}

// Default returns the configuration used for any value not set in the file.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "sitesearch.db"},
		Server:   ServerConfig{Addr: ":8080"},
		Crawler: CrawlerConfig{
			Workers:        8,
			Delay:          150 * time.Millisecond,
			UserAgent:      "SiteSearchBot/1.0",
			RequestTimeout: 30 * time.Second,
			RespectRobots:  true,
		},
		Search: SearchConfig{
			FrequencyThreshold: 100,
			SnippetWindow:      5,
			DefaultLimit:       20,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (YAML) on top of Default and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.ErrCodeConfigNotFound, "config file not found: "+path, err)
		}
		return nil, apperrors.ConfigError("read config", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, apperrors.ConfigError("parse config "+path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvePath picks the config path from the flag value or the environment.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Crawler.Workers = n
		}
	}
}

// Validate checks the configuration and normalizes site entries.
func (c *Config) Validate() error {
	if len(c.Sites) == 0 {
		return apperrors.ConfigError("at least one site must be configured", nil)
	}
	seen := make(map[string]bool, len(c.Sites))
	for i := range c.Sites {
		s := &c.Sites[i]
		u, err := url.Parse(strings.TrimSpace(s.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperrors.ConfigError(fmt.Sprintf("site %d: %q is not an absolute http(s) URL", i, s.URL), err)
		}
		s.URL = u.Scheme + "://" + strings.ToLower(u.Host)
		if s.Name == "" {
			s.Name = u.Host
		}
		key := HostKey(u.Host)
		if seen[key] {
			return apperrors.ConfigError("duplicate site "+s.URL, nil)
		}
		seen[key] = true
	}
	if c.Crawler.Workers <= 0 {
		return apperrors.ConfigError("crawler.workers must be positive", nil)
	}
	if c.Crawler.Delay < 0 {
		return apperrors.ConfigError("crawler.delay must not be negative", nil)
	}
	if c.Search.FrequencyThreshold < 1 {
		return apperrors.ConfigError("search.frequency_threshold must be at least 1", nil)
	}
	if c.Search.SnippetWindow < 1 {
		return apperrors.ConfigError("search.snippet_window must be at least 1", nil)
	}
	if c.Search.DefaultLimit < 1 {
		c.Search.DefaultLimit = 20
	}
	if c.Database.Path == "" {
		return apperrors.ConfigError("database.path is required", nil)
	}
	return nil
}

// SiteByHost returns the configured site serving host, ignoring case and a
// leading "www.".
func (c *Config) SiteByHost(host string) (SiteConfig, bool) {
	key := HostKey(host)
	for _, s := range c.Sites {
		u, err := url.Parse(s.URL)
		if err != nil {
			continue
		}
		if HostKey(u.Host) == key {
			return s, true
		}
	}
	return SiteConfig{}, false
}

// HostKey is the comparison form of a host name.
func HostKey(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
