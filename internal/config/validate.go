package config

import (
	"fmt"
	"net"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"warning": true,
	"error": true,
}

var validArchiveProviders = map[string]bool{
	"none":  true,
	"s3":    true,
	"azure": true,
	"gcs":   true,
	"b2":    true,
}

// ValidationResult separates validation problems that merely deserve a
// logged warning from ones that must block startup.
type ValidationResult struct {
	Warnings []error
	Fatals   []error
}

// HasFatals reports whether startup should be aborted.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// ValidateTiered checks the config for invalid values, clamping anything
// that would otherwise panic downstream (rate limiter construction,
// listener setup) and separating hard failures from warnings a caller
// may choose to just log.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.ListenAddress == "" {
		result.Fatals = append(result.Fatals, fmt.Errorf("listen_address must not be empty"))
	} else if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		result.Fatals = append(result.Fatals, fmt.Errorf("listen_address %q is invalid: %w", c.ListenAddress, err))
	}

	if c.RecordingsDir == "" {
		result.Fatals = append(result.Fatals, fmt.Errorf("recordings_dir must not be empty"))
	}

	if c.DatabasePath == "" {
		result.Fatals = append(result.Fatals, fmt.Errorf("database_path must not be empty"))
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), defaulting to info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid (use text or json), defaulting to text", c.LogFormat))
		c.LogFormat = "text"
	}

	if c.LogMaxSizeMB < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_max_size_mb %d is below minimum 1, clamping", c.LogMaxSizeMB))
		c.LogMaxSizeMB = 1
	}
	if c.LogMaxBackups < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_max_backups %d is negative, clamping to 0", c.LogMaxBackups))
		c.LogMaxBackups = 0
	}

	if c.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddress); err != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("metrics_address %q is invalid: %w, metrics will be disabled", c.MetricsAddress, err))
			c.MetricsAddress = ""
		}
	}

	if c.LoginRateLimitPerSecond <= 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("login_rate_limit_per_second %v is below minimum, clamping to 1", c.LoginRateLimitPerSecond))
		c.LoginRateLimitPerSecond = 1
	}
	if c.LoginRateLimitBurst < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("login_rate_limit_burst %d is below minimum 1, clamping", c.LoginRateLimitBurst))
		c.LoginRateLimitBurst = 1
	}

	provider := strings.ToLower(c.ArchiveProvider)
	if provider == "" {
		provider = "none"
	}
	if !validArchiveProviders[provider] {
		result.Fatals = append(result.Fatals, fmt.Errorf("archive_provider %q is not one of none, s3, azure, gcs, b2", c.ArchiveProvider))
	} else {
		c.ArchiveProvider = provider
	}

	switch provider {
	case "s3":
		if c.ArchiveBucket == "" {
			result.Fatals = append(result.Fatals, fmt.Errorf("archive_bucket must be set when archive_provider is s3"))
		}
	case "azure":
		if c.ArchiveContainer == "" || c.ArchiveAccount == "" {
			result.Fatals = append(result.Fatals, fmt.Errorf("archive_container and archive_account must be set when archive_provider is azure"))
		}
	case "gcs":
		if c.ArchiveBucket == "" {
			result.Fatals = append(result.Fatals, fmt.Errorf("archive_bucket must be set when archive_provider is gcs"))
		}
	case "b2":
		if c.ArchiveKeyID == "" || c.ArchiveKey == "" || c.ArchiveBucket == "" {
			result.Fatals = append(result.Fatals, fmt.Errorf("archive_key_id, archive_key, and archive_bucket must be set when archive_provider is b2"))
		}
	}

	return result
}
