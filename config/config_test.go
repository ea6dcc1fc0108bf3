package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "median", cfg.Analyzer.Method)
	assert.Equal(t, 1, cfg.Analyzer.BaselineLookback)
	assert.Len(t, cfg.Funds, 17)

	fund, err := cfg.Fund("tf-22")
	require.NoError(t, err)
	assert.Equal(t, "https://timefolioetf.co.kr/m11_view.php?idx=22", fund.URL)
	assert.Equal(t, CategoryOverseas, fund.Category)

	_, err = cfg.Fund("nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestParse(t *testing.T) {
	raw := []byte(`
data_dir: /var/lib/fundwatch
timezone: UTC
storage:
  backend: wal
calendar:
  holidays: ["2025-10-03", "2025-10-09"]
collector:
  timeout: 5s
  retries: "2"
  cache_ttl: 1m
  insecure_skip_verify: true
analyzer:
  method: aggregate
  baseline_lookback: "3"
  weight_tolerance: "0.5"
server:
  addr: 127.0.0.1:9000
funds:
  - id: demo
    name: Demo Fund
    url: http://localhost/demo
`)

	cfg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/fundwatch", cfg.DataDir)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, "wal", cfg.Storage.Backend)
	assert.Equal(t, []date.Date{date.MustParse("2025-10-03"), date.MustParse("2025-10-09")}, cfg.Holidays)
	assert.Equal(t, 5*time.Second, cfg.Collector.Timeout)
	assert.Equal(t, 2, cfg.Collector.Retries)
	assert.Equal(t, time.Minute, cfg.Collector.CacheTTL)
	assert.True(t, cfg.Collector.InsecureSkipVerify)
	assert.Equal(t, "aggregate", cfg.Analyzer.Method)
	assert.Equal(t, 3, cfg.Analyzer.BaselineLookback)
	assert.True(t, cfg.Analyzer.WeightTolerance.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	require.Len(t, cfg.Funds, 1)
	assert.Equal(t, "demo", cfg.Funds[0].ID)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "backend", raw: "storage:\n  backend: redis\n"},
		{name: "timezone", raw: "timezone: Mars/Olympus\n"},
		{name: "holiday", raw: "calendar:\n  holidays: [tomorrow]\n"},
		{name: "retries", raw: "collector:\n  retries: many\n"},
		{name: "method", raw: "analyzer:\n  method: mean\n"},
		{name: "lookback", raw: "analyzer:\n  baseline_lookback: \"0\"\n"},
		{name: "tolerance", raw: "analyzer:\n  weight_tolerance: \"-1\"\n"},
		{name: "fund without url", raw: "funds:\n  - id: x\n"},
		{name: "duplicate fund", raw: "funds:\n  - {id: x, url: u}\n  - {id: x, url: v}\n"},
		{name: "yaml", raw: "funds: {"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fundwatch.yaml")
	require.NoError(t, Save(path, ConfigTmp{DataDir: "from-file", Analyzer: AnalyzerConfigTmp{Method: "aggregate"}}))

	t.Chdir(dir)
	t.Setenv(EnvDataDir, "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DataDir)
	assert.Equal(t, "aggregate", cfg.Analyzer.Method)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvDataDir+"=dotenv-dir\n"), 0o644))

	t.Chdir(dir)
	t.Setenv(EnvDataDir, "")
	require.NoError(t, os.Unsetenv(EnvDataDir))
	t.Setenv(EnvConfig, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-dir", cfg.DataDir)
	assert.Len(t, cfg.Funds, 17)
}
