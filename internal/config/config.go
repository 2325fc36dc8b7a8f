// Package config holds the linkage run configuration: plain numeric and
// string parameters loaded from defaults, an optional YAML file, then
// environment-variable overrides, in that precedence order.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/reclink/internal/record"
)

// Config is the full parameter surface of a linkage run.
type Config struct {
	Population struct {
		Size             int     `yaml:"size"`
		Seed             int64   `yaml:"seed"`
		NoiseProbability float64 `yaml:"noise_probability"`
	} `yaml:"population"`

	Linkage struct {
		BlockingKey    string  `yaml:"blocking_key"`
		YearScale      float64 `yaml:"year_scale"`
		AgreeThreshold float64 `yaml:"agree_threshold"`
	} `yaml:"linkage"`

	EM struct {
		MaxIterations int     `yaml:"max_iterations"`
		Tolerance     float64 `yaml:"tolerance"`
	} `yaml:"em"`

	Analysis struct {
		GridStep     float64 `yaml:"grid_step"`
		BinCount     int     `yaml:"bin_count"`
		MinPosterior float64 `yaml:"min_posterior"`
	} `yaml:"analysis"`

	Output struct {
		Dir       string `yaml:"dir"`
		StorePath string `yaml:"store_path"`
	} `yaml:"output"`
}

// Default returns the standard configuration: 1,000 records, 25% per-field
// noise, blocking on zipcode, the two-year Gaussian kernel, and the
// hundred-step threshold grid.
func Default() *Config {
	cfg := &Config{}
	cfg.Population.Size = 1000
	cfg.Population.Seed = 123
	cfg.Population.NoiseProbability = 0.25
	cfg.Linkage.BlockingKey = record.FieldZipCode
	cfg.Linkage.YearScale = 2.0
	cfg.Linkage.AgreeThreshold = 0.85
	cfg.EM.MaxIterations = 100
	cfg.EM.Tolerance = 1e-5
	cfg.Analysis.GridStep = 0.01
	cfg.Analysis.BinCount = 10
	cfg.Analysis.MinPosterior = 1e-6
	cfg.Output.Dir = "out"
	cfg.Output.StorePath = ""
	return cfg
}

// Load builds the configuration from defaults, the optional YAML file at
// path (empty path skips the file), and RL_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv() {
	c.Population.Size = getEnvInt("RL_POPULATION_SIZE", c.Population.Size)
	c.Population.Seed = int64(getEnvInt("RL_SEED", int(c.Population.Seed)))
	c.Population.NoiseProbability = getEnvFloat("RL_NOISE_PROBABILITY", c.Population.NoiseProbability)
	c.Linkage.BlockingKey = getEnv("RL_BLOCKING_KEY", c.Linkage.BlockingKey)
	c.Linkage.YearScale = getEnvFloat("RL_YEAR_SCALE", c.Linkage.YearScale)
	c.Linkage.AgreeThreshold = getEnvFloat("RL_AGREE_THRESHOLD", c.Linkage.AgreeThreshold)
	c.EM.MaxIterations = getEnvInt("RL_EM_MAX_ITERATIONS", c.EM.MaxIterations)
	c.EM.Tolerance = getEnvFloat("RL_EM_TOLERANCE", c.EM.Tolerance)
	c.Analysis.GridStep = getEnvFloat("RL_GRID_STEP", c.Analysis.GridStep)
	c.Analysis.BinCount = getEnvInt("RL_BIN_COUNT", c.Analysis.BinCount)
	c.Analysis.MinPosterior = getEnvFloat("RL_MIN_POSTERIOR", c.Analysis.MinPosterior)
	c.Output.Dir = getEnv("RL_OUTPUT_DIR", c.Output.Dir)
	c.Output.StorePath = getEnv("RL_STORE_PATH", c.Output.StorePath)
}

// Validate rejects parameter values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Population.Size <= 0 {
		return fmt.Errorf("population size must be positive, got %d", c.Population.Size)
	}
	if c.Population.NoiseProbability < 0 || c.Population.NoiseProbability > 1 {
		return fmt.Errorf("noise probability must be in [0,1], got %g", c.Population.NoiseProbability)
	}
	switch c.Linkage.BlockingKey {
	case record.FieldFirstName, record.FieldLastName, record.FieldBirthYear, record.FieldZipCode:
	default:
		return fmt.Errorf("unknown blocking key: %s", c.Linkage.BlockingKey)
	}
	if c.Linkage.AgreeThreshold <= 0 || c.Linkage.AgreeThreshold > 1 {
		return fmt.Errorf("agree threshold must be in (0,1], got %g", c.Linkage.AgreeThreshold)
	}
	if c.EM.MaxIterations <= 0 {
		return fmt.Errorf("EM iteration cap must be positive, got %d", c.EM.MaxIterations)
	}
	if c.Analysis.GridStep <= 0 || c.Analysis.GridStep > 1 {
		return fmt.Errorf("grid step must be in (0,1], got %g", c.Analysis.GridStep)
	}
	if c.Analysis.BinCount <= 0 {
		return fmt.Errorf("bin count must be positive, got %d", c.Analysis.BinCount)
	}
	return nil
}

// getEnv returns environment variable or default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns integer environment variable or default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat returns float environment variable or default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
