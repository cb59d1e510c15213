package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Issue captures a validation problem with a config field.
type Issue struct {
	Field   string
	Message string
}

// ValidationError aggregates config validation issues.
type ValidationError struct {
	Issues []Issue
}

// Error renders validation errors as a multi-line string.
func (err *ValidationError) Error() string {
	if err == nil || len(err.Issues) == 0 {
		return "config validation failed"
	}
	lines := make([]string, 0, len(err.Issues))
	for _, issue := range err.Issues {
		lines = append(lines, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return strings.Join(lines, "\n")
}

type issueCollector struct {
	issues []Issue
}

func (c *issueCollector) add(field, message string) {
	c.issues = append(c.issues, Issue{Field: field, Message: message})
}

func (c *issueCollector) result() error {
	if len(c.issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: c.issues}
}

// Validate checks a normalized config for correctness.
func Validate(cfg *Config) error {
	issues := &issueCollector{}

	if cfg.Version == 0 {
		issues.add("version", "is required")
	} else if cfg.Version != currentVersion {
		issues.add("version", fmt.Sprintf("unsupported version %d", cfg.Version))
	}
	if strings.TrimSpace(cfg.DataRoot) == "" {
		issues.add("data_root", "is required")
	}

	validateProvider(cfg.Provider, issues)
	validateInference(cfg.Inference, issues)
	validateRevision(cfg.Revision, issues)
	return issues.result()
}

func validateProvider(provider ProviderConfig, issues *issueCollector) {
	if provider.Name != DefaultProvider {
		issues.add("provider.name", fmt.Sprintf("unsupported provider %q", provider.Name))
	}
	parsed, err := url.Parse(provider.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		issues.add("provider.base_url", fmt.Sprintf("invalid url %q", provider.BaseURL))
	}
	if strings.TrimSpace(provider.APIKeyEnv) == "" {
		issues.add("provider.api_key_env", "is required")
	}
}

func validateInference(inf InferenceConfig, issues *issueCollector) {
	if inf.MaxConcurrent < 1 {
		issues.add("inference.max_concurrent", "must be >= 1")
	}
	if inf.TimeoutSeconds < 1 {
		issues.add("inference.timeout_seconds", "must be >= 1")
	}
	if inf.MaxAttempts < 1 {
		issues.add("inference.max_attempts", "must be >= 1")
	}
	if inf.RetryDelayMs < 0 {
		issues.add("inference.retry_delay_ms", "must be >= 0")
	}
	if inf.MaxRetryDelayMs < 0 {
		issues.add("inference.max_retry_delay_ms", "must be >= 0")
	}
	if inf.RequestsPerMinute < 0 {
		issues.add("inference.requests_per_minute", "must be >= 0")
	}
}

func validateRevision(rev RevisionConfig, issues *issueCollector) {
	if strings.TrimSpace(rev.Model) == "" {
		issues.add("revision.revision_model", "is required")
	}
	if rev.MaxRounds < 0 {
		issues.add("revision.max_rounds", "must be >= 0")
	}
	if rev.TargetThreshold <= 0 || rev.TargetThreshold > 1 {
		issues.add("revision.target_threshold", "must be in (0, 1]")
	}
	if rev.MaxFailures < 1 {
		issues.add("revision.max_failures", "must be >= 1")
	}
	if rev.MaxAttempts < 1 {
		issues.add("revision.max_attempts", "must be >= 1")
	}
	if rev.MaxDocChars < 1 {
		issues.add("revision.max_doc_chars", "must be >= 1")
	}
	switch rev.Keep {
	case KeepBest, KeepLatest:
	default:
		issues.add("revision.keep", fmt.Sprintf("unsupported policy %q (expected best|latest)", rev.Keep))
	}
}
