package config

// Config is the on-disk configuration for soulbench runs.
type Config struct {
	Version    int             `yaml:"version"`
	DataRoot   string          `yaml:"data_root"`
	ResultsDir string          `yaml:"results_dir"`
	Catalog    string          `yaml:"catalog"`
	Provider   ProviderConfig  `yaml:"provider"`
	Inference  InferenceConfig `yaml:"inference"`
	Revision   RevisionConfig  `yaml:"revision"`
}

// ProviderConfig selects the inference service.
type ProviderConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// InferenceConfig bounds calls made to the inference service.
type InferenceConfig struct {
	MaxConcurrent     int `yaml:"max_concurrent"`
	TimeoutSeconds    int `yaml:"timeout_seconds"`
	MaxAttempts       int `yaml:"max_attempts"`
	RetryDelayMs      int `yaml:"retry_delay_ms"`
	MaxRetryDelayMs   int `yaml:"max_retry_delay_ms"`
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// RevisionConfig controls the revision loop.
type RevisionConfig struct {
	Model           string  `yaml:"revision_model"`
	MaxRounds       int     `yaml:"max_rounds"`
	TargetThreshold float64 `yaml:"target_threshold"`
	MaxFailures     int     `yaml:"max_failures"`
	MaxAttempts     int     `yaml:"max_attempts"`
	MaxDocChars     int     `yaml:"max_doc_chars"`
	Keep            string  `yaml:"keep"`
}
