package cli

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"soulbench/internal/catalog"
	"soulbench/internal/config"
	"soulbench/internal/dataset"
	"soulbench/internal/duckdb"
	"soulbench/internal/inference"
	"soulbench/pkg/ratelimiter"
	"soulbench/pkg/ratelimiter/local"
)

// environment bundles the config and prompt catalog shared by commands.
type environment struct {
	cfg        config.Config
	configPath string
	catalog    *catalog.Catalog
}

// loadEnvironment loads an explicit or discovered config, falling back to
// defaults, then the catalog it points at.
func loadEnvironment(configPath string) (environment, error) {
	cfg, path, err := config.LoadOrDefault(strings.TrimSpace(configPath), "")
	if err != nil {
		return environment{}, fmt.Errorf("load config: %w", err)
	}
	cat, err := catalog.Load(cfg.Catalog, cfg.DataRoot)
	if err != nil {
		return environment{}, fmt.Errorf("load catalog: %w", err)
	}
	return environment{cfg: cfg, configPath: path, catalog: cat}, nil
}

func (e environment) source() dataset.FileSource {
	return dataset.FileSource{Root: e.cfg.DataRoot, Patterns: e.catalog.DatasetPatterns()}
}

// newProvider is a test seam for the inference provider.
var newProvider = func(cfg config.Config) (inference.Provider, error) {
	if err := config.LoadDotEnv("."); err != nil {
		return nil, err
	}
	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}
	return inference.NewOpenRouterProvider(key, cfg.Provider.BaseURL, nil)
}

// clientOverrides carries flag values that win over the config file.
type clientOverrides struct {
	maxConcurrent int
	timeout       time.Duration
}

// newClient builds the bounded inference client. Models listed get a
// requests-per-minute budget when the config sets one.
func newClient(cfg config.Config, overrides clientOverrides, limits ratelimiter.SchedulerObserver, models ...string) (*inference.Client, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	settings := inference.Settings{
		MaxConcurrent: cfg.Inference.MaxConcurrent,
		Timeout:       time.Duration(cfg.Inference.TimeoutSeconds) * time.Second,
		MaxAttempts:   cfg.Inference.MaxAttempts,
		RetryDelay:    time.Duration(cfg.Inference.RetryDelayMs) * time.Millisecond,
		MaxRetryDelay: time.Duration(cfg.Inference.MaxRetryDelayMs) * time.Millisecond,
	}
	if overrides.maxConcurrent > 0 {
		settings.MaxConcurrent = overrides.maxConcurrent
	}
	if overrides.timeout > 0 {
		settings.Timeout = overrides.timeout
	}
	var opts []inference.Option
	if limits != nil {
		opts = append(opts, inference.WithSchedulerObserver(limits))
	}
	if rpm := cfg.Inference.RequestsPerMinute; rpm > 0 {
		opts = append(opts, inference.WithLimiter(local.NewRequestsPerMinute(uint64(rpm), models...)))
	}
	return inference.NewClient(provider, settings, opts...), nil
}

// closeClient stops the client's worker pool, bounded by a short grace period.
func closeClient(client *inference.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = client.Close(ctx)
}

// openWarehouse opens the optional DuckDB file. An empty path disables it.
func openWarehouse(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	db, err := duckdb.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}
