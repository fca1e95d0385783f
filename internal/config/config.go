package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/ensemble"
	"github.com/couchcryptid/rainfall-analysis-service/internal/indices"
	"github.com/couchcryptid/rainfall-analysis-service/internal/normalize"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Analysis Analysis

	// RegionsFile replaces the built-in region catalogue when set.
	RegionsFile       string
	BaselineCacheSize int

	// Shared baseline tier; disabled when RedisAddr is empty.
	RedisAddr string
	RedisTTL  time.Duration

	// Report publishing.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaReportTopic string
}

// Analysis groups the settings of the analysis engine.
type Analysis struct {
	Domain        domain.BoundingBox
	BaselineStart int
	BaselineEnd   int
	WetSeason     domain.MonthRange
	Units         normalize.UnitThresholds
	Indices       indices.Options
	Ensemble      ensemble.Options
	DeadBandPct   float64
}

// BaselinePeriod is the default baseline restricted to the wet season.
func (a Analysis) BaselinePeriod() domain.TimeRange {
	return domain.YearRange(a.BaselineStart, a.BaselineEnd).WithSeason(a.WetSeason)
}

// DefaultAnalysis returns the analysis settings used when no variables are set.
func DefaultAnalysis() Analysis {
	return Analysis{
		Domain:        domain.IndiaDomain,
		BaselineStart: 1990,
		BaselineEnd:   2019,
		WetSeason:     domain.Monsoon,
		Units:         normalize.DefaultUnitThresholds(),
		Indices:       indices.DefaultOptions(),
		Ensemble:      ensemble.DefaultOptions(),
		DeadBandPct:   5,
	}
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	analysis, err := LoadAnalysis()
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseInt("BASELINE_CACHE_SIZE", 64)
	if err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		return nil, errors.New("invalid BASELINE_CACHE_SIZE: must be positive")
	}

	redisTTL, err := parseDuration("REDIS_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:          sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
		Analysis:          analysis,
		RegionsFile:       os.Getenv("REGIONS_FILE"),
		BaselineCacheSize: cacheSize,
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisTTL:          redisTTL,
		KafkaEnabled:      os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReportTopic:  sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "rainfall-analysis-reports"),
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaReportTopic == "" {
			return nil, errors.New("KAFKA_REPORT_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

// LoadAnalysis reads only the analysis settings. The CLI uses it directly.
func LoadAnalysis() (Analysis, error) {
	a := DefaultAnalysis()
	var err error

	if s := os.Getenv("DOMAIN_BOUNDS"); s != "" {
		if a.Domain, err = parseBounds(s); err != nil {
			return Analysis{}, fmt.Errorf("invalid DOMAIN_BOUNDS: %w", err)
		}
	}
	if a.BaselineStart, err = parseInt("BASELINE_START_YEAR", a.BaselineStart); err != nil {
		return Analysis{}, err
	}
	if a.BaselineEnd, err = parseInt("BASELINE_END_YEAR", a.BaselineEnd); err != nil {
		return Analysis{}, err
	}
	if a.BaselineEnd < a.BaselineStart {
		return Analysis{}, errors.New("invalid BASELINE_END_YEAR: before BASELINE_START_YEAR")
	}
	if s, ok := os.LookupEnv("WET_SEASON"); ok {
		if a.WetSeason, err = domain.ParseMonthRange(s); err != nil {
			return Analysis{}, fmt.Errorf("invalid WET_SEASON: %w", err)
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"WET_DAY_THRESHOLD_MM", &a.Indices.WetDayThreshold},
		{"HEAVY_RAIN_THRESHOLD_MM", &a.Indices.HeavyRainThreshold},
		{"MIN_VALID_FRACTION", &a.Indices.MinValidFraction},
		{"CONFIDENCE_HIGH_BELOW", &a.Ensemble.HighBelow},
		{"CONFIDENCE_MEDIUM_BELOW", &a.Ensemble.MediumBelow},
		{"UNIT_FLUX_UPPER", &a.Units.FluxUpper},
		{"UNIT_DEPTH_LOWER", &a.Units.DepthLower},
		{"UNIT_MIN_CONFIDENCE", &a.Units.MinConfidence},
		{"DEAD_BAND_PERCENT", &a.DeadBandPct},
	}
	for _, f := range floats {
		if *f.dst, err = parseFloat(f.key, *f.dst); err != nil {
			return Analysis{}, err
		}
	}

	if s := os.Getenv("CATEGORY_THRESHOLDS"); s != "" {
		if a.Indices.Categories, err = indices.ParseCategories(s); err != nil {
			return Analysis{}, fmt.Errorf("invalid CATEGORY_THRESHOLDS: %w", err)
		}
	}
	a.Ensemble.Estimator = ensemble.SpreadEstimator(strings.ToLower(sharedcfg.EnvOrDefault("SPREAD_ESTIMATOR", string(a.Ensemble.Estimator))))

	if err := a.Units.Validate(); err != nil {
		return Analysis{}, fmt.Errorf("invalid UNIT_* settings: %w", err)
	}
	if err := a.Indices.Validate(); err != nil {
		return Analysis{}, fmt.Errorf("invalid index settings: %w", err)
	}
	if err := a.Ensemble.Validate(); err != nil {
		return Analysis{}, fmt.Errorf("invalid CONFIDENCE_*/SPREAD_ESTIMATOR settings: %w", err)
	}
	if a.DeadBandPct < 0 {
		return Analysis{}, errors.New("invalid DEAD_BAND_PERCENT: must not be negative")
	}
	return a, nil
}

// parseBounds reads "latMin,latMax,lonMin,lonMax".
func parseBounds(s string) (domain.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.BoundingBox{}, fmt.Errorf("%q needs latMin,latMax,lonMin,lonMax", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("%q: %w", p, err)
		}
		v[i] = f
	}
	b := domain.BoundingBox{LatMin: v[0], LatMax: v[1], LonMin: v[2], LonMax: v[3]}
	return b, b.Validate()
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
