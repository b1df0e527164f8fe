package config

import (
	"fmt"
)

// Validate checks a configuration for invalid values
func Validate(cfg *Config) error {
	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", cfg.Gateway.Port)
	}

	if cfg.Catalog.Dir == "" && cfg.Catalog.RepoURL == "" {
		return fmt.Errorf("catalog requires at least one of dir or repoUrl")
	}

	if cfg.Sandbox.RuntimeBin == "" {
		return fmt.Errorf("sandbox.runtimeBin is required")
	}

	if cfg.Sandbox.WorkdirRoot == "" {
		return fmt.Errorf("sandbox.workdirRoot is required")
	}

	if cfg.Pool.IdleTimeout <= 0 {
		return fmt.Errorf("pool.idleTimeout must be positive")
	}

	if cfg.Pool.SweepInterval <= 0 {
		return fmt.Errorf("pool.sweepInterval must be positive")
	}

	if cfg.Pool.ProbeAttempts <= 0 {
		return fmt.Errorf("pool.probeAttempts must be positive")
	}

	switch cfg.Log.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error")
	}

	return nil
}
