// Package config loads service configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`

	Metric struct {
		Provider  string  `yaml:"provider"` // haversine, osrm
		OSRMURL   string  `yaml:"osrmUrl"`
		ReqPerSec float64 `yaml:"reqPerSec"`
		SpeedMph  float64 `yaml:"speedMph"`
	} `yaml:"metric"`

	Solver struct {
		TimeBudgetSec int    `yaml:"timeBudgetSec"`
		MaxStopsCap   int    `yaml:"maxStopsPerRoute"`
		SpeedTier     string `yaml:"speedTier"`
	} `yaml:"solver"`
}

func defaults() Config {
	var c Config
	c.Addr = ":8080"
	c.Metric.Provider = "haversine"
	c.Metric.ReqPerSec = 5
	c.Metric.SpeedMph = 30
	c.Solver.TimeBudgetSec = 120
	c.Solver.MaxStopsCap = 50
	c.Solver.SpeedTier = "balanced"
	return c
}

// Load reads the YAML file at path (if non-empty and present) and then
// applies environment overrides.
func Load(path string) (Config, error) {
	c := defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return c, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&c)
	if c.Solver.TimeBudgetSec <= 0 {
		c.Solver.TimeBudgetSec = 120
	}
	if c.Solver.MaxStopsCap <= 0 {
		c.Solver.MaxStopsCap = 50
	}
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		c.Addr = ":" + v
	}
	if v := os.Getenv("ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("METRIC_PROVIDER"); v != "" {
		c.Metric.Provider = v
	}
	if v := os.Getenv("OSRM_URL"); v != "" {
		c.Metric.OSRMURL = v
	}
	if v := os.Getenv("SOLVER_TIME_BUDGET_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Solver.TimeBudgetSec = n
		}
	}
	if v := os.Getenv("MAX_STOPS_PER_ROUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Solver.MaxStopsCap = n
		}
	}
	if v := os.Getenv("SOLVER_SPEED_TIER"); v != "" {
		c.Solver.SpeedTier = v
	}
}
