// Package config loads fundwatch settings from a YAML file, a .env file and the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

const (
	// EnvDataDir overrides data_dir.
	EnvDataDir = "FUNDWATCH_DATA_DIR"
	// EnvConfig points at the YAML config when no --config flag is given.
	EnvConfig = "FUNDWATCH_CONFIG"

	DefaultDataDir          = "data"
	DefaultTimezone         = "Asia/Seoul"
	DefaultStorageBackend   = "file"
	DefaultCollectTimeout   = 30 * time.Second
	DefaultCollectRetries   = 3
	DefaultCacheTTL         = 10 * time.Minute
	DefaultMethod           = "median"
	DefaultBaselineLookback = 1
	DefaultServerAddr       = ":8080"
)

// Config holds parsed settings.
type Config struct {
	DataDir   string
	Location  *time.Location
	Storage   StorageConfig
	Holidays  []date.Date
	Collector CollectorConfig
	Analyzer  AnalyzerConfig
	Server    ServerConfig
	Funds     []domain.Fund
}

type StorageConfig struct {
	Backend string
}

type CollectorConfig struct {
	Timeout            time.Duration
	Retries            int
	CacheTTL           time.Duration
	UserAgent          string
	InsecureSkipVerify bool
}

type AnalyzerConfig struct {
	// Method names the drift estimator: median or aggregate.
	Method string
	// BaselineLookback is how many business days back a baseline snapshot is searched for.
	BaselineLookback int
	// WeightTolerance is the accepted distance of a snapshot's weight sum from 100.
	WeightTolerance decimal.Decimal
}

type ServerConfig struct {
	Addr string
}

// ConfigTmp is the YAML representation of Config.
type ConfigTmp struct {
	DataDir   string             `yaml:"data_dir,omitempty"`
	Timezone  string             `yaml:"timezone,omitempty"`
	Storage   StorageConfigTmp   `yaml:"storage,omitempty"`
	Calendar  CalendarConfigTmp  `yaml:"calendar,omitempty"`
	Collector CollectorConfigTmp `yaml:"collector,omitempty"`
	Analyzer  AnalyzerConfigTmp  `yaml:"analyzer,omitempty"`
	Server    ServerConfigTmp    `yaml:"server,omitempty"`
	Funds     []domain.Fund      `yaml:"funds,omitempty"`
}

type StorageConfigTmp struct {
	Backend string `yaml:"backend,omitempty"`
}

type CalendarConfigTmp struct {
	Holidays []string `yaml:"holidays,omitempty"`
}

type CollectorConfigTmp struct {
	Timeout            time.Duration `yaml:"timeout,omitempty"`
	RetriesStr         string        `yaml:"retries,omitempty"`
	CacheTTL           time.Duration `yaml:"cache_ttl,omitempty"`
	UserAgent          string        `yaml:"user_agent,omitempty"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify,omitempty"`
}

type AnalyzerConfigTmp struct {
	Method              string `yaml:"method,omitempty"`
	BaselineLookbackStr string `yaml:"baseline_lookback,omitempty"`
	WeightToleranceStr  string `yaml:"weight_tolerance,omitempty"`
}

type ServerConfigTmp struct {
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the settings used when no config file is given.
func Default() Config {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		loc = time.FixedZone("KST", 9*60*60)
	}

	return Config{
		DataDir:  DefaultDataDir,
		Location: loc,
		Storage:  StorageConfig{Backend: DefaultStorageBackend},
		Collector: CollectorConfig{
			Timeout:  DefaultCollectTimeout,
			Retries:  DefaultCollectRetries,
			CacheTTL: DefaultCacheTTL,
		},
		Analyzer: AnalyzerConfig{
			Method:           DefaultMethod,
			BaselineLookback: DefaultBaselineLookback,
			WeightTolerance:  domain.DefaultWeightTolerance,
		},
		Server: ServerConfig{Addr: DefaultServerAddr},
		Funds:  DefaultFunds(),
	}
}

// Load reads .env if present, then the YAML file at path (defaults only when
// path is empty) and finally applies environment overrides.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		cfg, err = Parse(raw)
		if err != nil {
			return Config{}, errors.Wrapf(err, "config %s", path)
		}
	}

	if dir := os.Getenv(EnvDataDir); dir != "" {
		cfg.DataDir = dir
	}

	return cfg, nil
}

// Parse decodes YAML and fills unset fields with defaults.
func Parse(raw []byte) (Config, error) {
	var tmp ConfigTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return Config{}, errors.Wrap(err, "decode yaml")
	}
	return tmp.toConfig()
}

func (c ConfigTmp) toConfig() (Config, error) {
	cfg := Default()

	if c.DataDir != "" {
		cfg.DataDir = c.DataDir
	}

	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return Config{}, errors.Wrapf(err, "incorrect 'timezone' param %q", c.Timezone)
		}
		cfg.Location = loc
	}

	switch c.Storage.Backend {
	case "":
	case "file", "wal":
		cfg.Storage.Backend = c.Storage.Backend
	default:
		return Config{}, errors.Errorf("incorrect 'storage.backend' param %q (file or wal)", c.Storage.Backend)
	}

	for _, h := range c.Calendar.Holidays {
		d, err := date.Parse(h)
		if err != nil {
			return Config{}, errors.Wrapf(err, "incorrect 'calendar.holidays' entry %q", h)
		}
		cfg.Holidays = append(cfg.Holidays, d)
	}

	if c.Collector.Timeout > 0 {
		cfg.Collector.Timeout = c.Collector.Timeout
	}
	if c.Collector.RetriesStr != "" {
		retries, err := strconv.Atoi(c.Collector.RetriesStr)
		if err != nil || retries < 0 {
			return Config{}, errors.Errorf("incorrect 'collector.retries' param %q (must be a non-negative integer)", c.Collector.RetriesStr)
		}
		cfg.Collector.Retries = retries
	}
	if c.Collector.CacheTTL != 0 {
		cfg.Collector.CacheTTL = c.Collector.CacheTTL
	}
	cfg.Collector.UserAgent = c.Collector.UserAgent
	cfg.Collector.InsecureSkipVerify = c.Collector.InsecureSkipVerify

	switch c.Analyzer.Method {
	case "":
	case "median", "aggregate":
		cfg.Analyzer.Method = c.Analyzer.Method
	default:
		return Config{}, errors.Errorf("incorrect 'analyzer.method' param %q (median or aggregate)", c.Analyzer.Method)
	}
	if c.Analyzer.BaselineLookbackStr != "" {
		lookback, err := strconv.Atoi(c.Analyzer.BaselineLookbackStr)
		if err != nil || lookback < 1 {
			return Config{}, errors.Errorf("incorrect 'analyzer.baseline_lookback' param %q (must be a positive integer)", c.Analyzer.BaselineLookbackStr)
		}
		cfg.Analyzer.BaselineLookback = lookback
	}
	if c.Analyzer.WeightToleranceStr != "" {
		tol, err := decimal.NewFromString(c.Analyzer.WeightToleranceStr)
		if err != nil || tol.IsNegative() {
			return Config{}, errors.Errorf("incorrect 'analyzer.weight_tolerance' param %q (must be a non-negative decimal)", c.Analyzer.WeightToleranceStr)
		}
		cfg.Analyzer.WeightTolerance = tol
	}

	if c.Server.Addr != "" {
		cfg.Server.Addr = c.Server.Addr
	}

	if len(c.Funds) > 0 {
		seen := make(map[string]struct{}, len(c.Funds))
		for _, f := range c.Funds {
			if f.ID == "" || f.URL == "" {
				return Config{}, errors.Errorf("fund %q needs both id and url", f.Name)
			}
			if _, dup := seen[f.ID]; dup {
				return Config{}, errors.Errorf("fund id %q listed twice", f.ID)
			}
			seen[f.ID] = struct{}{}
		}
		cfg.Funds = c.Funds
	}

	return cfg, nil
}

// Fund returns the configured fund with the given id.
func (c Config) Fund(id string) (domain.Fund, error) {
	for _, f := range c.Funds {
		if f.ID == id {
			return f, nil
		}
	}
	return domain.Fund{}, errors.Wrapf(domain.ErrNotFound, "fund %q is not configured", id)
}

// Today is the current date in the configured market timezone.
func (c Config) Today() date.Date {
	return date.Today(c.Location)
}

// Save writes tmp as YAML to path.
func Save(path string, tmp ConfigTmp) error {
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "encode yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write config")
	}
	return nil
}
