package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shrey-shah842/phishguard/internal/ratelimit"
)

type Config struct {
	DBPath       string                    `yaml:"db_path"`
	Listen       string                    `yaml:"listen"`
	SafeBrowsing SafeBrowsing              `yaml:"safebrowsing"`
	Whois        Whois                     `yaml:"whois"`
	Predictor    Predictor                 `yaml:"predictor"`
	ASN          ASN                       `yaml:"asn"`
	RateLimits   map[string]ratelimit.Rule `yaml:"rate_limits"`
	Redis        Redis                     `yaml:"redis"`
	Bus          Bus                       `yaml:"bus"`
	Warning      Warning                   `yaml:"warning"`
}

type SafeBrowsing struct {
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key"`
	ClientID      string        `yaml:"client_id"`
	ClientVersion string        `yaml:"client_version"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Whois struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Predictor struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ASN configures the optional Team Cymru origin lookup.
type ASN struct {
	Enabled bool          `yaml:"enabled"`
	Server  string        `yaml:"server"`
	Zone    string        `yaml:"zone"`
	Timeout time.Duration `yaml:"timeout"`
}

// Redis moves rate windows out of process when Addr is set.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Bus struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Warning struct {
	DismissAfter time.Duration `yaml:"dismiss_after"`
}

func Default() *Config {
	return &Config{
		DBPath: "phishguard.db",
		Listen: "127.0.0.1:8081",
		SafeBrowsing: SafeBrowsing{
			Endpoint:      "https://safebrowsing.googleapis.com/v4/threatMatches:find",
			ClientID:      "anti-phishing-extension",
			ClientVersion: "1.0",
			Timeout:       10 * time.Second,
		},
		Whois: Whois{
			Endpoint: "https://www.whoisxmlapi.com/whoisserver/WhoisService",
			Timeout:  10 * time.Second,
		},
		Predictor: Predictor{
			Endpoint: "http://127.0.0.1:5000/predict",
			Timeout:  10 * time.Second,
		},
		ASN: ASN{
			Server:  "1.1.1.1:53",
			Zone:    "origin.asn.cymru.com.",
			Timeout: 3 * time.Second,
		},
		RateLimits: map[string]ratelimit.Rule{
			ratelimit.KeySafeBrowsing:  ratelimit.DefaultRule(),
			ratelimit.KeyDomainDetails: ratelimit.DefaultRule(),
			ratelimit.KeyASN:           ratelimit.DefaultRule(),
		},
		Redis:   Redis{Prefix: "phishguard:ratelimit:"},
		Bus:     Bus{Timeout: 10 * time.Second},
		Warning: Warning{DismissAfter: 10 * time.Second},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// PHISHGUARD_* environment variables, in that order. A .env file in the
// working directory is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DBPath = getEnv("PHISHGUARD_DB", c.DBPath)
	c.Listen = getEnv("PHISHGUARD_LISTEN", c.Listen)
	c.SafeBrowsing.APIKey = getEnv("PHISHGUARD_SAFEBROWSING_API_KEY", c.SafeBrowsing.APIKey)
	c.SafeBrowsing.Endpoint = getEnv("PHISHGUARD_SAFEBROWSING_ENDPOINT", c.SafeBrowsing.Endpoint)
	c.Whois.APIKey = getEnv("PHISHGUARD_WHOIS_API_KEY", c.Whois.APIKey)
	c.Whois.Endpoint = getEnv("PHISHGUARD_WHOIS_ENDPOINT", c.Whois.Endpoint)
	c.Predictor.Endpoint = getEnv("PHISHGUARD_PREDICTOR_URL", c.Predictor.Endpoint)
	c.ASN.Server = getEnv("PHISHGUARD_ASN_SERVER", c.ASN.Server)
	c.Redis.Addr = getEnv("PHISHGUARD_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("PHISHGUARD_REDIS_PASSWORD", c.Redis.Password)

	var err error
	if c.ASN.Enabled, err = getEnvBool("PHISHGUARD_ASN_ENABLED", c.ASN.Enabled); err != nil {
		return err
	}
	if c.Redis.DB, err = getEnvInt("PHISHGUARD_REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.Bus.Timeout, err = getEnvDuration("PHISHGUARD_BUS_TIMEOUT", c.Bus.Timeout); err != nil {
		return err
	}
	return nil
}

// Validate checks that durations and rate rules are usable.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	for name, rule := range c.RateLimits {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rate_limits.%s: %w", name, err)
		}
	}
	durations := map[string]time.Duration{
		"safebrowsing.timeout":  c.SafeBrowsing.Timeout,
		"whois.timeout":         c.Whois.Timeout,
		"predictor.timeout":     c.Predictor.Timeout,
		"asn.timeout":           c.ASN.Timeout,
		"bus.timeout":           c.Bus.Timeout,
		"warning.dismiss_after": c.Warning.DismissAfter,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.ASN.Enabled && !strings.HasSuffix(c.ASN.Zone, ".") {
		return fmt.Errorf("asn.zone must be fully qualified, got %q", c.ASN.Zone)
	}
	return nil
}

// LimiterOptions turns the rate_limits section into limiter options.
func (c *Config) LimiterOptions() []ratelimit.Option {
	opts := make([]ratelimit.Option, 0, len(c.RateLimits))
	for key, rule := range c.RateLimits {
		opts = append(opts, ratelimit.WithRule(key, rule))
	}
	return opts
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
