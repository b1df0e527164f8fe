package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level daemon configuration
type Config struct {
	Log     LogConfig     `mapstructure:"log" json:"log"`
	Catalog CatalogConfig `mapstructure:"catalog" json:"catalog"`
	Gateway GatewayConfig `mapstructure:"gateway" json:"gateway"`
	Sandbox SandboxConfig `mapstructure:"sandbox" json:"sandbox"`
	Pool    PoolConfig    `mapstructure:"pool" json:"pool"`
}

// LogConfig configures logging output
type LogConfig struct {
	Level   string `mapstructure:"level" json:"level"`
	File    string `mapstructure:"file" json:"file"`
	Console bool   `mapstructure:"console" json:"console"`
	Pretty  bool   `mapstructure:"pretty" json:"pretty"`
}

// CatalogConfig configures plugin discovery sources
type CatalogConfig struct {
	Dir            string        `mapstructure:"dir" json:"dir"`
	RepoURL        string        `mapstructure:"repoUrl" json:"repoUrl"`
	SnapshotPath   string        `mapstructure:"snapshotPath" json:"snapshotPath"`
	RescanInterval time.Duration `mapstructure:"rescanInterval" json:"rescanInterval"`
}

// GatewayConfig configures the host RPC server
type GatewayConfig struct {
	Port   int    `mapstructure:"port" json:"port"`
	DBPath string `mapstructure:"dbPath" json:"dbPath"`
}

// SandboxConfig configures the isolation runtime
type SandboxConfig struct {
	RuntimeBin        string `mapstructure:"runtimeBin" json:"runtimeBin"`
	BundlerBin        string `mapstructure:"bundlerBin" json:"bundlerBin"`
	ShimDir           string `mapstructure:"shimDir" json:"shimDir"`
	WorkdirRoot       string `mapstructure:"workdirRoot" json:"workdirRoot"`
	CompatibilityDate string `mapstructure:"compatibilityDate" json:"compatibilityDate"`
}

// PoolConfig configures sandbox pooling and eviction
type PoolConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idleTimeout" json:"idleTimeout"`
	SweepInterval time.Duration `mapstructure:"sweepInterval" json:"sweepInterval"`
	ProbeAttempts int           `mapstructure:"probeAttempts" json:"probeAttempts"`
	ProbeDelay    time.Duration `mapstructure:"probeDelay" json:"probeDelay"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".pluginhost")

	return &Config{
		Log: LogConfig{
			Level:   "info",
			Console: true,
			Pretty:  false,
		},
		Catalog: CatalogConfig{
			Dir:            filepath.Join(base, "plugins"),
			SnapshotPath:   filepath.Join(base, "catalog.json"),
			RescanInterval: 10 * time.Minute,
		},
		Gateway: GatewayConfig{
			Port:   8420,
			DBPath: filepath.Join(base, "gateway.db"),
		},
		Sandbox: SandboxConfig{
			RuntimeBin:        "workerd",
			BundlerBin:        "esbuild",
			ShimDir:           filepath.Join(base, "shims"),
			WorkdirRoot:       filepath.Join(base, "sandboxes"),
			CompatibilityDate: "2024-09-02",
		},
		Pool: PoolConfig{
			IdleTimeout:   20 * time.Minute,
			SweepInterval: 5 * time.Minute,
			ProbeAttempts: 40,
			ProbeDelay:    250 * time.Millisecond,
		},
	}
}
