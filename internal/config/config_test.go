package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
app:
  env: prod
store:
  path: /tmp/test-verdict.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9926", cfg.App.HTTPAddr)
	assert.Equal(t, "/tmp/test-verdict.db", cfg.Store.Path)
	assert.Equal(t, 1, cfg.Ensemble.MinProviders)
	assert.InDelta(t, 0.5, cfg.Ensemble.MultiplierFloor, 1e-9)
	assert.InDelta(t, 1.5, cfg.Ensemble.MultiplierCap, 1e-9)
	assert.Equal(t, 300, cfg.Cache.SweepIntervalSeconds)
	assert.InDelta(t, 70.0, cfg.Safety.MinConfidence, 1e-9)
	assert.Equal(t, 14, cfg.Regime.ADXPeriod)
}

func TestLoad_ExplicitValuesKept(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
ensemble:
  min_providers: 3
  multiplier_cap: 2.0
cache:
  default_ttl_seconds: 900
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Ensemble.MinProviders)
	assert.InDelta(t, 2.0, cfg.Ensemble.MultiplierCap, 1e-9)
	assert.Equal(t, 900, cfg.Cache.DefaultTTLSeconds)
	assert.Equal(t, float64(900), cfg.Cache.DefaultTTL().Seconds())
}

func TestLoad_IncludeMerging(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
app:
  log_level: debug
ensemble:
  min_providers: 2
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
ensemble:
  min_providers: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	// 主文件覆盖 include 的同名键，未覆盖的沿用
	assert.Equal(t, 4, cfg.Ensemble.MinProviders)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoad_ValidationRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"倒挂的乘数区间", "ensemble:\n  multiplier_floor: 2.0\n  multiplier_cap: 1.0\n"},
		{"负TTL", "cache:\n  default_ttl_seconds: -5\n"},
		{"置信度越界", "safety:\n  min_confidence: 150\n"},
		{"波动阈值越界", "regime:\n  volatility_threshold: 3\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", tc.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	pathA := filepath.Join(dir, "a.yaml")
	writeConfig(t, dir, "b.yaml", "include:\n  - a.yaml\n")
	_, err := Load(pathA)
	assert.Error(t, err)
}
