package sgd

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config collects every tunable of a training run. LoadConfig starts from
// DefaultConfig, so fields absent from the file keep their defaults.
type Config struct {
	// Algorithm name: nodeMovie, edgeMovie, block, blockAndSliceUsers,
	// blockAndSliceBoth, sliceMarch.
	Algo string `yaml:"algo"`

	// Learning-rate schedule: intel, purdue, bottou, inv.
	Learn string `yaml:"learn"`

	// Width of a user slice inside a worker's rectangle.
	UsersPerBlockSlice uint32 `yaml:"users_per_block_slice"`

	// Height of a movie slice inside a worker's rectangle.
	MoviesPerBlockSlice uint32 `yaml:"movies_per_block_slice"`

	// Compute and log the RMSE at the top of every epoch.
	VerifyPerIter bool `yaml:"verify_per_iter"`

	// Worker count. 0 uses GOMAXPROCS.
	Threads int `yaml:"threads"`

	// Address for the /metrics endpoint, e.g. ":9100". Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// Path for the factor snapshot written after training. Empty disables it.
	SnapshotPath string `yaml:"snapshot_path"`

	// Snapshot precision: float64 or float16.
	SnapshotPrecision string `yaml:"snapshot_precision"`
}

// DefaultConfig returns the defaults the original tool shipped with.
func DefaultConfig() Config {
	return Config{
		Algo:                "blockAndSliceBoth",
		Learn:               "intel",
		UsersPerBlockSlice:  2048,
		MoviesPerBlockSlice: 512,
		VerifyPerIter:       false,
		Threads:             0,
		SnapshotPrecision:   "float64",
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("sgd: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("sgd: parse config: %w", err)
	}
	return cfg, nil
}

// workers resolves the effective worker count.
func (c Config) workers() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return runtime.GOMAXPROCS(0)
}
