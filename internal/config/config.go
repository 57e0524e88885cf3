// Package config provides configuration structures and loading for claimsurvival.
package config

import "time"

// Config represents the complete application configuration.
type Config struct {
	Redis        RedisConfig        `yaml:"redis" mapstructure:"redis"`
	Taxonomy     TaxonomyConfig     `yaml:"taxonomy" mapstructure:"taxonomy"`
	Layout       LayoutConfig       `yaml:"layout" mapstructure:"layout"`
	Processing   ProcessingConfig   `yaml:"processing" mapstructure:"processing"`
	Session      SessionConfig      `yaml:"session" mapstructure:"session"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// RedisConfig represents the connection to the claim store.
type RedisConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	Password           string `yaml:"password" mapstructure:"password"`
	DB                 int    `yaml:"db" mapstructure:"db"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, required
	ServerName         string `yaml:"server_name" mapstructure:"server_name"`
	PoolSize           int    `yaml:"pool_size" mapstructure:"pool_size"`
	DialTimeoutSeconds int    `yaml:"dial_timeout_seconds" mapstructure:"dial_timeout_seconds"`
}

// TaxonomyConfig holds the ordered survival categories and the lifetime of
// every session working collection. Category order encodes dedup priority:
// the last category wins.
type TaxonomyConfig struct {
	Categories []string `yaml:"categories" mapstructure:"categories"`
	TTLSeconds int      `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
}

// LayoutConfig describes how claims and partitions are keyed in the store.
type LayoutConfig struct {
	RecordPrefix    string `yaml:"record_prefix" mapstructure:"record_prefix"`
	PartitionPrefix string `yaml:"partition_prefix" mapstructure:"partition_prefix"`
	AllScope        string `yaml:"all_scope" mapstructure:"all_scope"`
	IDField         string `yaml:"id_field" mapstructure:"id_field"`
	ParentField     string `yaml:"parent_field" mapstructure:"parent_field"`
	SubField        string `yaml:"sub_field" mapstructure:"sub_field"`
	CategoryField   string `yaml:"category_field" mapstructure:"category_field"`
}

// ProcessingConfig represents batching and fan-out settings.
type ProcessingConfig struct {
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"` // 0 = one worker per category
}

// SessionConfig controls optional per-session mutual exclusion.
type SessionConfig struct {
	LockEnabled        bool `yaml:"lock_enabled" mapstructure:"lock_enabled"`
	LockTimeoutSeconds int  `yaml:"lock_timeout_seconds" mapstructure:"lock_timeout_seconds"`
	// LockLeaseSeconds is how long the lock survives without renewal; 0 uses ttl_seconds.
	LockLeaseSeconds int `yaml:"lock_lease_seconds" mapstructure:"lock_lease_seconds"`
}

// VerificationConfig represents post-run invariant checking.
type VerificationConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultCategories is the survival taxonomy used when none is configured.
var DefaultCategories = []string{
	"6_unbinned",
	"5_killed",
	"4_impaired",
	"3_weakened",
	"2_unaffected",
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Host:               "localhost",
			Port:               6379,
			TLS:                "disable",
			PoolSize:           10,
			DialTimeoutSeconds: 5,
		},
		Taxonomy: TaxonomyConfig{
			Categories: append([]string(nil), DefaultCategories...),
			TTLSeconds: 3600,
		},
		Layout: LayoutConfig{
			RecordPrefix:    "claimID:",
			PartitionPrefix: "survivalList:",
			AllScope:        "all",
			IDField:         "ID",
			ParentField:     "Patent",
			SubField:        "Claim",
			CategoryField:   "survivalStatus",
		},
		Processing: ProcessingConfig{
			BatchSize:   1000,
			Concurrency: 0,
		},
		Session: SessionConfig{
			LockEnabled:        false,
			LockTimeoutSeconds: 1,
		},
		Verification: VerificationConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// TTL returns the session working collection lifetime.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.Taxonomy.TTLSeconds) * time.Second
}

// LockTimeout returns how long to wait for a held session lock.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Session.LockTimeoutSeconds) * time.Second
}

// LockLease returns the session lock lease. The holder renews it while it runs.
func (c *Config) LockLease() time.Duration {
	if c.Session.LockLeaseSeconds > 0 {
		return time.Duration(c.Session.LockLeaseSeconds) * time.Second
	}
	return c.TTL()
}

// Workers returns the effective fan-out for per-category work.
func (c *Config) Workers() int {
	if c.Processing.Concurrency > 0 {
		return c.Processing.Concurrency
	}
	if n := len(c.Taxonomy.Categories); n > 0 {
		return n
	}
	return 1
}

// PartitionKey returns the global partition set key for a category.
func (l LayoutConfig) PartitionKey(category string) string {
	return l.PartitionPrefix + category
}

// IsAllScope reports whether scope names the universe of all records.
func (l LayoutConfig) IsAllScope(scope string) bool {
	return scope == l.AllScope
}

// RecordFields returns the hash fields read when expanding a claim, in
// identifier, parent, sub order.
func (l LayoutConfig) RecordFields() []string {
	return []string{l.IDField, l.ParentField, l.SubField}
}
