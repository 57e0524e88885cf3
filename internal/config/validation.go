package config

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/claimsurvival/internal/session"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateTaxonomy()...)
	errors = append(errors, c.validateLayout()...)
	errors = append(errors, c.validateProcessing()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "host is required",
		})
	}

	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if c.Redis.DB < 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.db",
			Message: "db cannot be negative",
		})
	}

	validTLS := map[string]bool{"disable": true, "required": true, "": true}
	if !validTLS[c.Redis.TLS] {
		errors = append(errors, ValidationError{
			Field:   "redis.tls",
			Message: "tls must be 'disable' or 'required'",
		})
	}

	if c.Redis.PoolSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.pool_size",
			Message: "pool_size cannot be negative",
		})
	}

	if c.Redis.DialTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.dial_timeout_seconds",
			Message: "dial_timeout_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateTaxonomy() ValidationErrors {
	var errors ValidationErrors

	if len(c.Taxonomy.Categories) == 0 {
		errors = append(errors, ValidationError{
			Field:   "taxonomy.categories",
			Message: "at least one category must be defined",
		})
	}

	seen := make(map[string]bool, len(c.Taxonomy.Categories))
	for i, category := range c.Taxonomy.Categories {
		field := fmt.Sprintf("taxonomy.categories[%d]", i)
		if strings.TrimSpace(category) == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "category cannot be empty",
			})
			continue
		}
		// Overlap keys join two categories with '_', and namespaces use ':'.
		if strings.ContainsAny(category, ": ") {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("category %q must not contain ':' or spaces", category),
			})
		}
		if what := session.CategoryConflict(category, c.Taxonomy.Categories); what != "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("category %q would share its store key with %s", category, what),
			})
		}
		if seen[category] {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate category %q", category),
			})
		}
		seen[category] = true
	}

	if c.Taxonomy.TTLSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "taxonomy.ttl_seconds",
			Message: "ttl_seconds must be positive",
		})
	}

	return errors
}

func (c *Config) validateLayout() ValidationErrors {
	var errors ValidationErrors

	required := []struct {
		field string
		value string
	}{
		{"layout.record_prefix", c.Layout.RecordPrefix},
		{"layout.partition_prefix", c.Layout.PartitionPrefix},
		{"layout.all_scope", c.Layout.AllScope},
		{"layout.id_field", c.Layout.IDField},
		{"layout.parent_field", c.Layout.ParentField},
		{"layout.sub_field", c.Layout.SubField},
		{"layout.category_field", c.Layout.CategoryField},
	}
	for _, r := range required {
		if r.value == "" {
			errors = append(errors, ValidationError{
				Field:   r.field,
				Message: "value is required",
			})
		}
	}

	return errors
}

func (c *Config) validateProcessing() ValidationErrors {
	var errors ValidationErrors

	if c.Processing.BatchSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Processing.BatchSize > 100000 {
		errors = append(errors, ValidationError{
			Field:   "processing.batch_size",
			Message: "batch_size cannot exceed 100000",
		})
	}

	if c.Processing.Concurrency < 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.concurrency",
			Message: "concurrency cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateSession() ValidationErrors {
	var errors ValidationErrors

	if c.Session.LockEnabled && c.Session.LockTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.lock_timeout_seconds",
			Message: "lock_timeout_seconds cannot be negative",
		})
	}
	if c.Session.LockLeaseSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.lock_lease_seconds",
			Message: "lock_lease_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
