// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/Median-Group/differential-evolution2/internal/logging"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging      logging.Config `envPrefix:"LOG_"`
	Optimization struct {
		PopulationSize    int           `env:"DE_POPULATION_SIZE" envDefault:"100"`
		F                 float64       `env:"DE_F" envDefault:"0.8"`
		CR                float64       `env:"DE_CR" envDefault:"0.9"`
		MaxGenerations    int           `env:"DE_MAX_GENERATIONS" envDefault:"1000"`
		MaxPopulationSize int           `env:"DE_MAX_POPULATION_SIZE" envDefault:"10000"`
		MaxDimensions     int           `env:"DE_MAX_DIMENSIONS" envDefault:"1000"`
		MaxConcurrentJobs int           `env:"DE_MAX_CONCURRENT_JOBS" envDefault:"10"`
		JobTimeout        time.Duration `env:"DE_JOB_TIMEOUT" envDefault:"10m"`
	}
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that env parsing cannot express.
func (c *Config) Validate() error {
	switch {
	case c.HTTP.Port <= 0 || c.HTTP.Port > 65535:
		return fmt.Errorf("HTTP_PORT %d out of range", c.HTTP.Port)
	case c.Optimization.PopulationSize < 4:
		return fmt.Errorf("DE_POPULATION_SIZE must be at least 4, got %d", c.Optimization.PopulationSize)
	case c.Optimization.MaxPopulationSize < 4:
		return fmt.Errorf("DE_MAX_POPULATION_SIZE must be at least 4, got %d", c.Optimization.MaxPopulationSize)
	case c.Optimization.PopulationSize > c.Optimization.MaxPopulationSize:
		return fmt.Errorf("DE_POPULATION_SIZE %d exceeds DE_MAX_POPULATION_SIZE %d",
			c.Optimization.PopulationSize, c.Optimization.MaxPopulationSize)
	case c.Optimization.MaxDimensions < 1:
		return fmt.Errorf("DE_MAX_DIMENSIONS must be positive, got %d", c.Optimization.MaxDimensions)
	case c.Optimization.MaxGenerations < 1:
		return fmt.Errorf("DE_MAX_GENERATIONS must be positive, got %d", c.Optimization.MaxGenerations)
	case c.Optimization.MaxConcurrentJobs < 1:
		return fmt.Errorf("DE_MAX_CONCURRENT_JOBS must be positive, got %d", c.Optimization.MaxConcurrentJobs)
	}
	return nil
}
