package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every policy knob mediadl reads at startup
type Config struct {
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Download  DownloadConfig  `yaml:"download" json:"download"`
	Ignore    IgnoreConfig    `yaml:"ignore" json:"ignore"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Network   NetworkConfig   `yaml:"network" json:"network"`
	Hashing   HashingConfig   `yaml:"hashing" json:"hashing"`
	Ledger    LedgerConfig    `yaml:"ledger" json:"ledger"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// DatabaseConfig locates the completion ledger
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// DownloadConfig controls where files land and how folders are named
type DownloadConfig struct {
	Directory                  string        `yaml:"directory" json:"directory"`
	SeparatePosts              bool          `yaml:"separate_posts" json:"separate_posts"`
	IncludeAlbumIDInFolderName bool          `yaml:"include_album_id_in_folder_name" json:"include_album_id_in_folder_name"`
	Workers                    int           `yaml:"workers" json:"workers"`
	Timeout                    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries                 int           `yaml:"max_retries" json:"max_retries"`
}

// IgnoreConfig holds content filters
type IgnoreConfig struct {
	IgnoreCoomerAds bool `yaml:"ignore_coomer_ads" json:"ignore_coomer_ads"`
	IgnoreHistory   bool `yaml:"ignore_history" json:"ignore_history"`
}

// RateLimitConfig sets the per-host request rate. Hosts overrides the default
// for individual hosts.
type RateLimitConfig struct {
	RequestsPerSecond float64            `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int                `yaml:"burst" json:"burst"`
	Hosts             map[string]float64 `yaml:"hosts,omitempty" json:"hosts,omitempty"`
}

// NetworkConfig holds HTTP client settings
type NetworkConfig struct {
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// HashingConfig selects the content digest policy
type HashingConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Algorithm string `yaml:"algorithm" json:"algorithm"`
}

// DomainRename rewrites historical ledger rows from one domain key to another
type DomainRename struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// LedgerConfig holds data-fix and duplicate-detection policy for the ledger
type LedgerConfig struct {
	KnownBadDigests []string       `yaml:"known_bad_digests" json:"known_bad_digests"`
	KnownBadSizes   []int64        `yaml:"known_bad_sizes" json:"known_bad_sizes"`
	DomainRenames   []DomainRename `yaml:"domain_renames" json:"domain_renames"`
}

// AuthConfig maps a site key (e.g. "coomer") to its session cookie value
type AuthConfig struct {
	Sessions map[string]string `yaml:"sessions,omitempty" json:"sessions,omitempty"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
	JSON  bool   `yaml:"json" json:"json"`
}

// DefaultKnownBadDigests are blake2b-512 digests of placeholder images a host
// served in place of deleted files.
var DefaultKnownBadDigests = []string{
	"848248acc7a1b72ea1e90430848badcc354aa0988c01da58642cd857cbb44dc4cbf790991434ffbc6ec04e37061ef07d2f56166fc93205efea9c7333742b5e33",
	"4bb7e09f649a22ba7992780deec38ca5963c2528ea9a2f6aa5429e853df7d691a3f694d65ef303e46e8b125bd88a397a8ec2d127fac47b6f92af6c9088b0b95f",
	"5dbbc6c65608369dcb5bc550ac8d72aff84e934304fa3ed5727d87c379fff2dd81c618221a7ad1d3417a36e8a202f1b32f23a3cf334a22b8d253232646697474",
	"6429f8cc13842d2a340aac32f2071580000085de3ca7d1ca8ba5ef0c4f694ea5849044db4ac79770ac36cbdd10ec7c4407fc4d22ea6d413712c23ea54d478000",
	"adc0ee3bd1a7e8466a699e895ed9b8345715c45489142f351fcb0bdd0a5d2962253c001d78c21302af158521a832ab334d385f7d942351d618f59b9872179d45",
	"e14e0c594596fcdb83cb8e64a8403f09a52bc1d1e2c0cdf4eb0317ca9fe5c012bf8328ee02ce033b01a802c83b61b945fbea2af8be615b3bf713b9b6080a102b",
	"6f3c5fb74a9e3a60b8f7150e2139341af06019a28f4415d55e19a2d9b2c7706375f880b676b7f5b1cddda673231c795245ccb2eb588dd09aaa0112bafe3627a4",
	"cde6f84226773d68d4e4f95d6faa99845a5088ea0ec0e41e5ff58f3262bce1bb727098a58b52a3bb67355e12c9012fcc671ba28c0a1773c0e455a57e9a1b2854",
	"1fa8256928d10dec6bc3f94e9c337c3d723b47a7e658ab492e3a27622bd7acb26a8dbf14526a31a865fb3405063ff9d9bdc3c5fd27f479d32f80e9c9ed6d2e7d",
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(DataDir(), "ledger.db"),
		},
		Download: DownloadConfig{
			Directory:  "./downloads",
			Workers:    4,
			Timeout:    5 * time.Minute,
			MaxRetries: 3,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 4,
			Burst:             4,
		},
		Network: NetworkConfig{
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
			Timeout:   30 * time.Second,
		},
		Hashing: HashingConfig{
			Enabled:   true,
			Algorithm: "blake2b",
		},
		Ledger: LedgerConfig{
			KnownBadDigests: append([]string(nil), DefaultKnownBadDigests...),
			KnownBadSizes:   []int64{322509},
			DomainRenames:   []DomainRename{{From: "bunkr", To: "bunkrr"}},
		},
		Auth: AuthConfig{
			Sessions: map[string]string{},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DataDir returns the per-user directory holding the ledger
func DataDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "mediadl")
		}
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediadl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "mediadl")
	}
	return filepath.Join(home, ".local", "share", "mediadl")
}

// Session returns the configured session credential for a site key
func (c *Config) Session(site string) string {
	if c.Auth.Sessions == nil {
		return ""
	}
	return c.Auth.Sessions[site]
}

// SetSession stores a session credential for a site key
func (c *Config) SetSession(site, value string) {
	if c.Auth.Sessions == nil {
		c.Auth.Sessions = map[string]string{}
	}
	c.Auth.Sessions[site] = value
}

// LoadFromEnv loads configuration from MEDIADL_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("MEDIADL_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("MEDIADL_OUTPUT_DIR"); v != "" {
		c.Download.Directory = v
	}
	if v := os.Getenv("MEDIADL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MEDIADL_HASH_ALGORITHM"); v != "" {
		c.Hashing.Algorithm = v
	}
	if v := os.Getenv("MEDIADL_REQUESTS_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MEDIADL_REQUESTS_PER_SECOND: %w", err))
		} else {
			c.RateLimit.RequestsPerSecond = rps
		}
	}
	for name, dst := range map[string]*bool{
		"MEDIADL_IGNORE_HISTORY":  &c.Ignore.IgnoreHistory,
		"MEDIADL_IGNORE_ADS":      &c.Ignore.IgnoreCoomerAds,
		"MEDIADL_SEPARATE_POSTS":  &c.Download.SeparatePosts,
		"MEDIADL_HASHING_ENABLED": &c.Hashing.Enabled,
	} {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				continue
			}
			*dst = b
		}
	}

	// MEDIADL_<SITE>_SESSION, e.g. MEDIADL_COOMER_SESSION
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		if site, found := strings.CutPrefix(key, "MEDIADL_"); found {
			if site, found = strings.CutSuffix(site, "_SESSION"); found && site != "" {
				c.SetSession(strings.ToLower(site), value)
			}
		}
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// DefaultConfigPath is where `mediadl config init` writes
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediadl", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mediadl", "config.yaml")
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		"mediadl.yaml",
		".mediadl.yaml",
		DefaultConfigPath(),
		filepath.Join(home, ".mediadl.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

var validHashAlgorithms = map[string]bool{"blake2b": true, "sha256": true, "xxhash": true}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Download.Directory == "" {
		errs = append(errs, errors.New("download directory is required"))
	}
	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("download workers must be positive"))
	}
	if c.Download.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("requests per second must be positive"))
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit burst must be positive"))
	}
	for host, rps := range c.RateLimit.Hosts {
		if rps <= 0 {
			errs = append(errs, fmt.Errorf("rate for host %s must be positive", host))
		}
	}
	if c.Network.Timeout <= 0 {
		errs = append(errs, errors.New("network timeout must be positive"))
	}
	if !validHashAlgorithms[strings.ToLower(c.Hashing.Algorithm)] {
		errs = append(errs, fmt.Errorf("unknown hash algorithm %q", c.Hashing.Algorithm))
	}
	for _, r := range c.Ledger.DomainRenames {
		if r.From == "" || r.To == "" || r.From == r.To {
			errs = append(errs, fmt.Errorf("invalid domain rename %q -> %q", r.From, r.To))
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// digestHexLen is the hex length of each algorithm's digest
var digestHexLen = map[string]int{"blake2b": 128, "sha256": 64, "xxhash": 16}

// Warnings reports settings that are valid but cannot do what they say, such
// as known-bad digests from a different algorithm than hashing.algorithm.
func (c *Config) Warnings() []string {
	var out []string

	algo := strings.ToLower(c.Hashing.Algorithm)
	if want, ok := digestHexLen[algo]; ok {
		mismatched := 0
		for _, d := range c.Ledger.KnownBadDigests {
			if len(d) != want {
				mismatched++
			}
		}
		if mismatched > 0 {
			out = append(out, fmt.Sprintf(
				"%d of %d known-bad digests are not %s digests and will never match; list %s digests in ledger.known_bad_digests",
				mismatched, len(c.Ledger.KnownBadDigests), algo, algo))
		}
	}
	return out
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Zero values are treated as unset.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["db"].(string); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Download.Directory = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Download.Workers = v
	}
	if v, ok := flags["rps"].(float64); ok && v > 0 {
		c.RateLimit.RequestsPerSecond = v
	}
	if v, ok := flags["ignore-history"].(bool); ok && v {
		c.Ignore.IgnoreHistory = true
	}
	if v, ok := flags["ignore-ads"].(bool); ok && v {
		c.Ignore.IgnoreCoomerAds = true
	}
	if v, ok := flags["separate-posts"].(bool); ok && v {
		c.Download.SeparatePosts = true
	}
	if v, ok := flags["hash"].(string); ok && v != "" {
		c.Hashing.Algorithm = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".mediadl.env"))
	}

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
