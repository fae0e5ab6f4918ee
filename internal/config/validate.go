package config

import (
	"fmt"
	"strings"

	"github.com/breeze-rmm/suma-sync/internal/suma"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var knownPublishProviders = map[string]bool{
	"":      true,
	"none":  true,
	"local": true,
	"s3":    true,
	"gcs":   true,
	"azure": true,
	"b2":    true,
}

// ValidationResult separates problems that prevent a run from those that were
// corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal problem was found.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// ValidateTiered checks the config. Unsafe numeric values are clamped and
// reported as warnings; values that make every operation fail are fatal.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if strings.TrimSpace(c.SumaPath) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("suma_path is required"))
	}
	if strings.TrimSpace(c.RootDir) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("root_dir is required"))
	}
	if strings.TrimSpace(c.CacheFile) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("cache_file is required"))
	}

	if len(c.Families) == 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("families must list at least one release family"))
	}
	for _, family := range c.Families {
		if _, err := suma.ParseFamily(family); err != nil {
			r.Fatals = append(r.Fatals, err)
		}
	}

	c.MaxFailures = clamp(&r, "max_failures", c.MaxFailures, 1, 10)
	c.MiningConcurrency = clamp(&r, "mining_concurrency", c.MiningConcurrency, 1, 8)
	c.ProgressIntervalSeconds = clamp(&r, "progress_interval_seconds", c.ProgressIntervalSeconds, 1, 60)
	c.Publish.Concurrency = clamp(&r, "publish.concurrency", c.Publish.Concurrency, 1, 32)

	if c.MinFreeDiskGB < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("min_free_disk_gb %.2f is negative, disabling check", c.MinFreeDiskGB))
		c.MinFreeDiskGB = 0
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	provider := strings.ToLower(c.Publish.Provider)
	if !knownPublishProviders[provider] {
		r.Fatals = append(r.Fatals, fmt.Errorf("publish.provider %q is not supported", c.Publish.Provider))
	}
	switch provider {
	case "local":
		if c.Publish.Path == "" {
			r.Fatals = append(r.Fatals, fmt.Errorf("publish.path is required for the local provider"))
		}
	case "s3", "gcs":
		if c.Publish.Bucket == "" {
			r.Fatals = append(r.Fatals, fmt.Errorf("publish.bucket is required for the %s provider", provider))
		}
	case "b2":
		if c.Publish.Bucket == "" || c.Publish.AccountID == "" || c.Publish.AccountKey == "" {
			r.Fatals = append(r.Fatals, fmt.Errorf("publish.bucket, publish.account_id and publish.account_key are required for the b2 provider"))
		}
	case "azure":
		if c.Publish.Container == "" {
			r.Fatals = append(r.Fatals, fmt.Errorf("publish.container is required for the azure provider"))
		}
		if c.Publish.ConnectionString == "" && (c.Publish.AccountID == "" || c.Publish.AccountKey == "") {
			r.Fatals = append(r.Fatals, fmt.Errorf("publish.connection_string or publish.account_id and publish.account_key are required for the azure provider"))
		}
	}

	return r
}

func clamp(r *ValidationResult, key string, value, lo, hi int) int {
	if value < lo {
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", key, value, lo))
		return lo
	}
	if value > hi {
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", key, value, hi))
		return hi
	}
	return value
}
