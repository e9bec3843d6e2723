package config

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/yegors/runway-sim/internal/simulation"
	"github.com/yegors/runway-sim/internal/trials"
	"github.com/yegors/runway-sim/pkg/logger"
)

// Config is the application configuration
type Config struct {
	Simulation SimulationConfig `toml:"simulation" json:"simulation"`
	Trials     TrialsConfig     `toml:"trials" json:"trials"`
	Logging    logger.Config    `toml:"logging" json:"-"`
	Storage    StorageConfig    `toml:"storage" json:"-"`
	Server     ServerConfig     `toml:"server" json:"-"`
}

// SimulationConfig holds the per-trial parameters
type SimulationConfig struct {
	Frames           int     `toml:"frames" json:"frames"`
	SpawnProbability float64 `toml:"spawn_probability" json:"spawn_probability"`
	RunwayCount      int     `toml:"runway_count" json:"runway_count"`
}

// TrialsConfig holds the batch parameters
type TrialsConfig struct {
	Count   int   `toml:"count" json:"count"`
	Workers int   `toml:"workers" json:"workers"`
	Seed    int64 `toml:"seed" json:"seed"`
}

// StorageConfig configures result persistence
type StorageConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	MaxConnections     int      `toml:"max_connections"`
	MaxTrials          int      `toml:"max_trials"` // upper bound for one API request
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// Default returns the reference configuration
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Frames:           simulation.DefaultFrames,
			SpawnProbability: simulation.DefaultSpawnProbability,
			RunwayCount:      1,
		},
		Trials: TrialsConfig{
			Count: 1000,
			Seed:  1,
		},
		Logging: logger.Config{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Enabled: false,
			Path:    "data/runway-sim.db",
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			MaxConnections: 64,
			MaxTrials:      10000,
		},
	}
}

// Load reads a TOML file over the defaults. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Batch converts the configuration into a trial batch
func (c *Config) Batch() trials.Config {
	return trials.Config{
		Trials:           c.Trials.Count,
		Workers:          c.Trials.Workers,
		Seed:             c.Trials.Seed,
		Frames:           c.Simulation.Frames,
		SpawnProbability: c.Simulation.SpawnProbability,
		RunwayCount:      c.Simulation.RunwayCount,
	}
}

// Validate rejects configuration misuse
func (c *Config) Validate() error {
	if err := c.Batch().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		return errors.New("invalid config: storage enabled without a path")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: port %d out of range", c.Server.Port)
	}
	if c.Server.MaxTrials < 0 {
		return fmt.Errorf("invalid config: max_trials %d is negative", c.Server.MaxTrials)
	}
	return nil
}
