// Package config loads and validates the collector's configuration:
// compiled-in defaults, an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelWeights is the ensemble's per-model contribution to the combined
// score (§4.4). Must sum to 1.
type ModelWeights struct {
	Supervised   float64 `yaml:"supervised"`
	Unsupervised float64 `yaml:"unsupervised"`
	Secondary    float64 `yaml:"secondary"`
}

// Bands is the score-to-band cutoff table (§4.4).
type Bands struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// Models lists artifact paths for the three tagged models (§3).
type Models struct {
	SupervisedPath   string       `yaml:"supervised_path"`
	UnsupervisedPath string       `yaml:"unsupervised_path"`
	SecondaryPath    string       `yaml:"secondary_path"`
	Weights          ModelWeights `yaml:"weights"`
}

// Geo configures enrichment behavior (§4.2).
type Geo struct {
	TimeoutMS   int           `yaml:"timeout_ms"`
	Concurrency int           `yaml:"concurrency"`
	CacheSize   int           `yaml:"cache_size"`
	PositiveTTL time.Duration `yaml:"positive_ttl"`
	NegativeTTL time.Duration `yaml:"negative_ttl"`
	DBPath      string        `yaml:"db_path"`
}

// Request configures per-request behavior at the ingest endpoint (§5).
type Request struct {
	DeadlineMS int `yaml:"deadline_ms"`
}

// Backpressure configures the store write queue high-water mark (§5).
type Backpressure struct {
	HighWatermark int `yaml:"high_watermark"`
}

// Config is the fully-resolved, validated collector configuration.
type Config struct {
	BindAddress     string       `yaml:"bind_address"`
	DBPath          string       `yaml:"db_path"`
	LogDir          string       `yaml:"log_dir"`
	Models          Models       `yaml:"models"`
	Bands           Bands        `yaml:"bands"`
	IndicatorPaths  []string     `yaml:"indicator_paths"`
	IndicatorActions []string    `yaml:"indicator_actions"`
	ScoreFloor      float64      `yaml:"score_floor"`
	Geo             Geo          `yaml:"geo"`
	Request         Request      `yaml:"request"`
	Backpressure    Backpressure `yaml:"backpressure"`
}

// Default returns the compiled-in configuration (§6).
func Default() Config {
	return Config{
		BindAddress: "0.0.0.0:8080",
		DBPath:      "collector.db",
		LogDir:      "./logs",
		Models: Models{
			SupervisedPath:   "./testdata/models/supervised.json",
			UnsupervisedPath: "./testdata/models/unsupervised.json",
			SecondaryPath:    "./testdata/models/secondary.json",
			Weights: ModelWeights{
				Supervised:   0.60,
				Unsupervised: 0.25,
				Secondary:    0.15,
			},
		},
		Bands: Bands{
			Low:    0.20,
			Medium: 0.40,
			High:   0.70,
		},
		IndicatorActions: []string{"git_push", "cred_access"},
		IndicatorPaths:   []string{".env", "secrets.yml", "credentials", "private.key", "kubeconfig-*"},
		ScoreFloor:       0.65,
		Geo: Geo{
			TimeoutMS:   2000,
			Concurrency: 16,
			CacheSize:   50000,
			PositiveTTL: 24 * time.Hour,
			NegativeTTL: 5 * time.Minute,
			DBPath:      "./geoip/GeoLite2-City.mmdb",
		},
		Request: Request{
			DeadlineMS: 5000,
		},
		Backpressure: Backpressure{
			HighWatermark: 1000,
		},
	}
}

// Load resolves configuration from defaults, an optional YAML file at path
// (skipped if empty or missing), then COLLECTOR_-prefixed environment
// variables, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COLLECTOR_BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("COLLECTOR_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("COLLECTOR_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("COLLECTOR_SCORE_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ScoreFloor = f
		}
	}
	if v := os.Getenv("COLLECTOR_GEO_DB_PATH"); v != "" {
		cfg.Geo.DBPath = v
	}
	if v := os.Getenv("COLLECTOR_INDICATOR_ACTIONS"); v != "" {
		cfg.IndicatorActions = strings.Split(v, ",")
	}
}

// Validate checks the invariants §8 (testable property 4) requires: the
// ensemble weights sum to 1 and bands are monotonically ordered.
func (c Config) Validate() error {
	sum := c.Models.Weights.Supervised + c.Models.Weights.Unsupervised + c.Models.Weights.Secondary
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("model weights must sum to 1, got %f", sum)
	}
	if !(0 <= c.Bands.Low && c.Bands.Low < c.Bands.Medium && c.Bands.Medium < c.Bands.High && c.Bands.High <= 1) {
		return fmt.Errorf("band thresholds must satisfy 0 <= low < medium < high <= 1")
	}
	if c.BindAddress == "" {
		return fmt.Errorf("bind_address is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	return nil
}
