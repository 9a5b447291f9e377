package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP API configurations
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Env             string        `mapstructure:"env"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is the per-client request rate; zero disables limiting
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// LoggerConfig holds logger configurations
type LoggerConfig struct {
	Level          string `mapstructure:"level"`
	Format         string `mapstructure:"format"`
	Output         string `mapstructure:"output"`
	FilePath       string `mapstructure:"file_path"`
	AddSource      bool   `mapstructure:"add_source"`
	EnableRotation bool   `mapstructure:"enable_rotation"`
	MaxSize        int    `mapstructure:"max_size"`
	MaxAge         int    `mapstructure:"max_age"`
	MaxBackups     int    `mapstructure:"max_backups"`
	Compress       bool   `mapstructure:"compress"`
}

// FetcherConfig holds HTTP transport configurations
type FetcherConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	RetryCount       int           `mapstructure:"retry_count"`
	RetryWaitTime    time.Duration `mapstructure:"retry_wait_time"`
	RetryMaxWaitTime time.Duration `mapstructure:"retry_max_wait_time"`
	RateLimit        float64       `mapstructure:"rate_limit"`
	RateBurst        int           `mapstructure:"rate_burst"`
	UserAgent        string        `mapstructure:"user_agent"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`
}

// RuleConfig holds rule interpreter configurations
type RuleConfig struct {
	RegexTimeout time.Duration `mapstructure:"regex_timeout"`
	CacheSize    int           `mapstructure:"cache_size"`
}

// TocConfig holds chapter list configurations
type TocConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxPages    int `mapstructure:"max_pages"`
}

// ContentConfig holds content normalization configurations
type ContentConfig struct {
	Indent     string `mapstructure:"indent"`
	KeepImages bool   `mapstructure:"keep_images"`
	Resegment  bool   `mapstructure:"resegment"`
	MaxPages   int    `mapstructure:"max_pages"`
}

// ScriptConfig holds script evaluator configurations
type ScriptConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExploreConfig holds explore kinds cache configurations
type ExploreConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// MonitoringConfig holds monitoring configurations
type MonitoringConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Rule       RuleConfig       `mapstructure:"rule"`
	Toc        TocConfig        `mapstructure:"toc"`
	Content    ContentConfig    `mapstructure:"content"`
	Script     ScriptConfig     `mapstructure:"script"`
	Explore    ExploreConfig    `mapstructure:"explore"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Env:             "development",
			ShutdownTimeout: 30 * time.Second,
			RateLimit:       10,
			RateBurst:       20,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Fetcher: FetcherConfig{
			Timeout:          15 * time.Second,
			RetryCount:       2,
			RetryWaitTime:    500 * time.Millisecond,
			RetryMaxWaitTime: 5 * time.Second,
			RateLimit:        5,
			RateBurst:        5,
			UserAgent:        "Mozilla/5.0 (Linux; Android 12) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36",
			MaxBodySize:      20 * 1024 * 1024,
		},
		Rule: RuleConfig{
			RegexTimeout: time.Second,
			CacheSize:    512,
		},
		Toc: TocConfig{
			Concurrency: 8,
			MaxPages:    1000,
		},
		Content: ContentConfig{
			Indent:     "　　",
			KeepImages: true,
			MaxPages:   50,
		},
		Script: ScriptConfig{
			Timeout: 5 * time.Second,
		},
		Explore: ExploreConfig{
			CacheTTL: 0,
		},
		Monitoring: MonitoringConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Override with environment variables
	overrideFromEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings that would disable a required bound
func (c *Config) Validate() error {
	if c.Rule.RegexTimeout <= 0 {
		return fmt.Errorf("rule.regex_timeout must be positive, got %s", c.Rule.RegexTimeout)
	}
	if c.Toc.Concurrency <= 0 {
		return fmt.Errorf("toc.concurrency must be positive, got %d", c.Toc.Concurrency)
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.env", d.Server.Env)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)

	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("logger.output", d.Logger.Output)

	v.SetDefault("fetcher.timeout", d.Fetcher.Timeout)
	v.SetDefault("fetcher.retry_count", d.Fetcher.RetryCount)
	v.SetDefault("fetcher.retry_wait_time", d.Fetcher.RetryWaitTime)
	v.SetDefault("fetcher.retry_max_wait_time", d.Fetcher.RetryMaxWaitTime)
	v.SetDefault("fetcher.rate_limit", d.Fetcher.RateLimit)
	v.SetDefault("fetcher.rate_burst", d.Fetcher.RateBurst)
	v.SetDefault("fetcher.user_agent", d.Fetcher.UserAgent)
	v.SetDefault("fetcher.max_body_size", d.Fetcher.MaxBodySize)

	v.SetDefault("rule.regex_timeout", d.Rule.RegexTimeout)
	v.SetDefault("rule.cache_size", d.Rule.CacheSize)

	v.SetDefault("toc.concurrency", d.Toc.Concurrency)
	v.SetDefault("toc.max_pages", d.Toc.MaxPages)

	v.SetDefault("content.indent", d.Content.Indent)
	v.SetDefault("content.keep_images", d.Content.KeepImages)
	v.SetDefault("content.resegment", d.Content.Resegment)
	v.SetDefault("content.max_pages", d.Content.MaxPages)

	v.SetDefault("script.timeout", d.Script.Timeout)
	v.SetDefault("explore.cache_ttl", d.Explore.CacheTTL)

	v.SetDefault("monitoring.enabled", d.Monitoring.Enabled)
	v.SetDefault("monitoring.port", d.Monitoring.Port)
	v.SetDefault("monitoring.path", d.Monitoring.Path)
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv(config *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logger.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Logger.Format = format
	}

	if ua := os.Getenv("FETCHER_USER_AGENT"); ua != "" {
		config.Fetcher.UserAgent = ua
	}
	if timeout := os.Getenv("FETCHER_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Fetcher.Timeout = d
		}
	}

	if c := os.Getenv("TOC_CONCURRENCY"); c != "" {
		if n, err := strconv.Atoi(c); err == nil && n > 0 {
			config.Toc.Concurrency = n
		}
	}

	if t := os.Getenv("RULE_REGEX_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			config.Rule.RegexTimeout = d
		}
	}
}
