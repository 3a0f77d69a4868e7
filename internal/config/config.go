// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig          `mapstructure:"server"`
	Crawler    CrawlerConfig         `mapstructure:"crawler"`
	Retry      RetryConfig           `mapstructure:"retry"`
	Headless   HeadlessConfig        `mapstructure:"headless"`
	Storage    StorageConfig         `mapstructure:"storage"`
	DB         DBConfig              `mapstructure:"db"`
	PubSub     PubSubConfig          `mapstructure:"pubsub"`
	Enrichment EnrichmentConfig      `mapstructure:"enrichment"`
	Logging    LoggingConfig         `mapstructure:"logging"`
	Sites      map[string]SiteConfig `mapstructure:"sites"`
	Seeds      SeedConfig            `mapstructure:"seeds"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs worker pool and fetch pacing behavior.
type CrawlerConfig struct {
	Concurrency       int      `mapstructure:"concurrency"`
	QueueDepth        int      `mapstructure:"queue_depth"`
	TimeoutSeconds    int      `mapstructure:"timeout_seconds"`
	MinDelayMs        int      `mapstructure:"min_delay_ms"`
	MaxDelayMs        int      `mapstructure:"max_delay_ms"`
	UserAgents        []string `mapstructure:"user_agents"`
	BlockedSignatures []string `mapstructure:"blocked_signatures"`
}

// RetryConfig bounds automatic reattempts of failed tasks.
type RetryConfig struct {
	MaxRetries       int `mapstructure:"max_retries"`
	BaseDelaySeconds int `mapstructure:"base_delay_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig sets the bucket for raw markup snapshots. An empty bucket
// keeps snapshots in memory.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory stores.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PubSubConfig holds the task queue topology. An empty project selects
// the in-memory queue.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	TopicName    string `mapstructure:"topic_name"`
	Subscription string `mapstructure:"subscription"`
}

// EnrichmentConfig configures the contact lookup API. Lookups are
// disabled when the API key is empty.
type EnrichmentConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SiteConfig describes one directory site: where listing pages live and
// how to read them.
type SiteConfig struct {
	BaseURL         string            `mapstructure:"base_url"`
	SeedPattern     string            `mapstructure:"seed_pattern"`
	PathLayout      []string          `mapstructure:"path_layout"`
	ListSelectors   map[string]string `mapstructure:"list_selectors"`
	DetailSelectors map[string]string `mapstructure:"detail_selectors"`
}

// SeedConfig lists the facet values seed URLs are generated from.
type SeedConfig struct {
	Sites      []string `mapstructure:"sites"`
	Categories []string `mapstructure:"categories"`
	Regions    []string `mapstructure:"regions"`
	Localities []string `mapstructure:"localities"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.queue_depth", 256)
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.min_delay_ms", 1000)
	v.SetDefault("crawler.max_delay_ms", 3000)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_seconds", 60)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("enrichment.timeout_seconds", 20)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.MinDelayMs > c.Crawler.MaxDelayMs {
		return fmt.Errorf("crawler.min_delay_ms must not exceed crawler.max_delay_ms")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.PubSub.ProjectID != "" && (c.PubSub.TopicName == "" || c.PubSub.Subscription == "") {
		return fmt.Errorf("pubsub.topic_name and pubsub.subscription must be set with pubsub.project_id")
	}
	if c.Enrichment.APIKey != "" && c.Enrichment.BaseURL == "" {
		return fmt.Errorf("enrichment.base_url must be set with enrichment.api_key")
	}
	for name, site := range c.Sites {
		if site.BaseURL == "" {
			return fmt.Errorf("sites.%s.base_url is required", name)
		}
		if len(site.ListSelectors) == 0 {
			return fmt.Errorf("sites.%s.list_selectors is required", name)
		}
	}
	return nil
}

// SiteProfiles converts the site configs to the runtime representation
// shared by the pipeline units.
func (c Config) SiteProfiles() map[string]crawler.SiteProfile {
	profiles := make(map[string]crawler.SiteProfile, len(c.Sites))
	for name, site := range c.Sites {
		profiles[name] = crawler.SiteProfile{
			BaseURL:         site.BaseURL,
			SeedPattern:     site.SeedPattern,
			ListSelectors:   crawler.SelectorSet(site.ListSelectors),
			DetailSelectors: crawler.SelectorSet(site.DetailSelectors),
		}
	}
	return profiles
}

// FacetLayouts collects the per-site URL path layouts for the facet
// extractor.
func (c Config) FacetLayouts() map[string][]string {
	layouts := make(map[string][]string)
	for name, site := range c.Sites {
		if len(site.PathLayout) > 0 {
			layouts[name] = site.PathLayout
		}
	}
	return layouts
}

// FetchTimeout converts the crawler timeout to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// MinDelay is the lower anti-detection delay bound.
func (c Config) MinDelay() time.Duration {
	return time.Duration(c.Crawler.MinDelayMs) * time.Millisecond
}

// MaxDelay is the upper anti-detection delay bound.
func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.Crawler.MaxDelayMs) * time.Millisecond
}

// RetryBaseDelay converts the retry base delay to a duration.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelaySeconds) * time.Second
}
