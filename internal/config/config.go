// Package config loads converter settings from a YAML file, the environment
// (SC2DS_ prefix) and an optional .env file holding database secrets.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
)

// TicksPerMinute is the replay clock at "faster" game speed (16 ticks/s).
const TicksPerMinute = 960

// Config holds every knob of the converter.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// DatabaseConfig selects the store holding game_info, build_order and the datasets.
type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"` // sqlite | postgres
	DSN            string `mapstructure:"dsn"`
	MaxOpenConns   int    `mapstructure:"max_open_conns"`
	TicksPerSecond int    `mapstructure:"ticks_per_second"`
}

// ReferenceConfig points at the static entity tables.
type ReferenceConfig struct {
	TaxonomyFile string `mapstructure:"taxonomy_file"` // name,race,type
	SupplyFile   string `mapstructure:"supply_file"`   // name,supply
}

// PipelineConfig holds the per-flavor numeric knobs.
type PipelineConfig struct {
	MinsPerSample     float64 `mapstructure:"mins_per_sample"`
	PredictionMinutes float64 `mapstructure:"prediction_minutes"`
	MinLeague         int     `mapstructure:"min_league"`
	IncludeUnranked   bool    `mapstructure:"include_unranked"`
	TickStep          int     `mapstructure:"tick_step"`
	Reducer           string  `mapstructure:"reducer"`
	WinProbDelay      float64 `mapstructure:"winprob_delay"`
	MinGameTicks      int     `mapstructure:"min_game_ticks"`
	Seed              uint64  `mapstructure:"seed"` // 0 = seed from entropy
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// MeanStepTicks is the mean distance between two samples.
func (p PipelineConfig) MeanStepTicks() int {
	return int(p.MinsPerSample * TicksPerMinute)
}

// HorizonTicks is the prediction horizon used for deltas and labels.
func (p PipelineConfig) HorizonTicks() int {
	return int(p.PredictionMinutes * TicksPerMinute)
}

// SetDefaults registers every default so environment overrides are picked up
// by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", filepath.Join(userHome(), ".sc2ds", "replays.db"))
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.ticks_per_second", 16)

	v.SetDefault("reference.taxonomy_file", "./game_data/game_info.csv")
	v.SetDefault("reference.supply_file", "./game_data/supply_data.csv")

	v.SetDefault("pipeline.mins_per_sample", 4)
	v.SetDefault("pipeline.prediction_minutes", 1)
	v.SetDefault("pipeline.min_league", 3)
	v.SetDefault("pipeline.include_unranked", true)
	v.SetDefault("pipeline.tick_step", 16)
	v.SetDefault("pipeline.reducer", "avg")
	v.SetDefault("pipeline.winprob_delay", 5)
	v.SetDefault("pipeline.min_game_ticks", 1920)
	v.SetDefault("pipeline.seed", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("metrics.addr", "")
}

// Load reads configuration from path (may be empty or missing), the
// environment and ./.env. The result is validated.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("SC2DS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
				return nil, errors.Wrapf(err, "read config %s", path)
			}
		}
	}
	return LoadWithViper(v)
}

// LoadWithViper unmarshals and validates an already prepared viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return errors.Config("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.Config("database.dsn is required")
	}
	if c.Database.TicksPerSecond <= 0 {
		return errors.Config("database.ticks_per_second must be positive")
	}
	p := c.Pipeline
	if p.TickStep <= 0 {
		return errors.Config("pipeline.tick_step must be positive, got %d", p.TickStep)
	}
	if p.MeanStepTicks() <= 0 {
		return errors.Config("pipeline.mins_per_sample must be positive")
	}
	if p.HorizonTicks() <= 0 {
		return errors.Config("pipeline.prediction_minutes must be positive")
	}
	if p.MinLeague < 0 {
		return errors.Config("pipeline.min_league must be >= 0")
	}
	if p.Reducer != "avg" && p.Reducer != "softmax" {
		return errors.Config("pipeline.reducer must be avg or softmax, got %q", p.Reducer)
	}
	return nil
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
