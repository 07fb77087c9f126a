package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "ADDR", "DATABASE_URL", "REDIS_URL", "METRIC_PROVIDER",
		"OSRM_URL", "SOLVER_TIME_BUDGET_SEC", "MAX_STOPS_PER_ROUTE", "SOLVER_SPEED_TIER",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Addr != ":8080" {
		t.Fatalf("addr %s", c.Addr)
	}
	if c.Metric.Provider != "haversine" || c.Metric.SpeedMph != 30 {
		t.Fatalf("metric defaults: %+v", c.Metric)
	}
	if c.Solver.TimeBudgetSec != 120 || c.Solver.MaxStopsCap != 50 || c.Solver.SpeedTier != "balanced" {
		t.Fatalf("solver defaults: %+v", c.Solver)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`addr: ":9090"
metric:
  provider: osrm
  osrmUrl: http://osrm:5000
  reqPerSec: 10
solver:
  timeBudgetSec: 30
  maxStopsPerRoute: 25
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Addr != ":9090" {
		t.Fatalf("addr %s", c.Addr)
	}
	if c.Metric.Provider != "osrm" || c.Metric.OSRMURL != "http://osrm:5000" || c.Metric.ReqPerSec != 10 {
		t.Fatalf("metric: %+v", c.Metric)
	}
	if c.Solver.TimeBudgetSec != 30 || c.Solver.MaxStopsCap != 25 {
		t.Fatalf("solver: %+v", c.Solver)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("addr: \":9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7070")
	t.Setenv("METRIC_PROVIDER", "osrm")
	t.Setenv("SOLVER_TIME_BUDGET_SEC", "45")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Addr != ":7070" {
		t.Fatalf("addr %s", c.Addr)
	}
	if c.Metric.Provider != "osrm" {
		t.Fatalf("provider %s", c.Metric.Provider)
	}
	if c.Solver.TimeBudgetSec != 45 {
		t.Fatalf("time budget %d", c.Solver.TimeBudgetSec)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if c.Addr != ":8080" {
		t.Fatalf("addr %s", c.Addr)
	}
}
