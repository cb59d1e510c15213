package config

// Defaults applied by Normalize when a field is unset.
const (
	DefaultProvider         = "openrouter"
	DefaultBaseURL          = "https://openrouter.ai/api/v1"
	DefaultAPIKeyEnv        = "OPENROUTER_API_KEY"
	DefaultDataRoot         = "data"
	DefaultMaxConcurrent    = 50
	DefaultTimeoutSeconds   = 150
	DefaultMaxAttempts      = 3
	DefaultRetryDelayMs     = 500
	DefaultMaxRetryDelayMs  = 30000
	DefaultRevisionModel    = "anthropic/claude-sonnet-4-5-20250929"
	DefaultMaxRounds        = 3
	DefaultTargetThreshold  = 1.0
	DefaultMaxFailures      = 30
	DefaultRevisionAttempts = 3
	DefaultMaxDocChars      = 40000
	KeepBest                = "best"
	KeepLatest              = "latest"
	currentVersion          = 1
)

// Default returns a normalized config used when no file is present.
func Default() Config {
	cfg := Config{Version: currentVersion}
	Normalize(&cfg)
	return cfg
}

// Normalize fills unset fields with defaults.
func Normalize(cfg *Config) {
	if cfg.DataRoot == "" {
		cfg.DataRoot = DefaultDataRoot
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = DefaultProvider
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = DefaultBaseURL
	}
	if cfg.Provider.APIKeyEnv == "" {
		cfg.Provider.APIKeyEnv = DefaultAPIKeyEnv
	}
	inf := &cfg.Inference
	if inf.MaxConcurrent == 0 {
		inf.MaxConcurrent = DefaultMaxConcurrent
	}
	if inf.TimeoutSeconds == 0 {
		inf.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if inf.MaxAttempts == 0 {
		inf.MaxAttempts = DefaultMaxAttempts
	}
	if inf.RetryDelayMs == 0 {
		inf.RetryDelayMs = DefaultRetryDelayMs
	}
	if inf.MaxRetryDelayMs == 0 {
		inf.MaxRetryDelayMs = DefaultMaxRetryDelayMs
	}
	rev := &cfg.Revision
	if rev.Model == "" {
		rev.Model = DefaultRevisionModel
	}
	if rev.MaxRounds == 0 {
		rev.MaxRounds = DefaultMaxRounds
	}
	if rev.TargetThreshold == 0 {
		rev.TargetThreshold = DefaultTargetThreshold
	}
	if rev.MaxFailures == 0 {
		rev.MaxFailures = DefaultMaxFailures
	}
	if rev.MaxAttempts == 0 {
		rev.MaxAttempts = DefaultRevisionAttempts
	}
	if rev.MaxDocChars == 0 {
		rev.MaxDocChars = DefaultMaxDocChars
	}
	if rev.Keep == "" {
		rev.Keep = KeepBest
	}
}
