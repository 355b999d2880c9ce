package weighting

import (
	"errors"
	"fmt"
	"math"
)

// Mode selects how position bounds are reconciled with the sum-to-1 invariant
type Mode string

const (
	// ModeClipRenormalize clips once to [MinWeight, MaxWeight] and rescales.
	// Sum is exact, bounds are approximate.
	ModeClipRenormalize Mode = "clip_renormalize"

	// ModeWaterFill pins violators at their bound and redistributes the rest
	// until no free weight violates a bound.
	ModeWaterFill Mode = "water_fill"
)

// factorSumTolerance is the allowed drift of the three factor weights from 1.0
const factorSumTolerance = 1e-9

// ErrInvalidConfig is wrapped by every ConfigError
var ErrInvalidConfig = errors.New("invalid weighting config")

// ConfigError describes the first failed configuration check
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("weighting config: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Config holds factor weights and position bounds
// ⭐ SSOT: 팩터 가중치 합 = 1.0 (1e-9), 위반 시 생성 단계에서 실패
type Config struct {
	ExposureWeight  float64 `json:"exposure_weight" yaml:"exposure_weight"`
	MarketCapWeight float64 `json:"market_cap_weight" yaml:"market_cap_weight"`
	GrowthWeight    float64 `json:"growth_weight" yaml:"growth_weight"`
	MaxWeight       float64 `json:"max_position" yaml:"max_position"` // 종목당 최대 비중 (0, 1)
	MinWeight       float64 `json:"min_position" yaml:"min_position"` // 종목당 최소 비중 (0, 1)
	Mode            Mode    `json:"mode,omitempty" yaml:"mode"`
}

// DefaultConfig returns 40/30/30 factor weights with a 10% cap and 1% floor
func DefaultConfig() Config {
	return Config{
		ExposureWeight:  0.4,
		MarketCapWeight: 0.3,
		GrowthWeight:    0.3,
		MaxWeight:       0.10,
		MinWeight:       0.01,
		Mode:            ModeClipRenormalize,
	}
}

// NewConfig builds a validated config in the default clip-renormalize mode
func NewConfig(exposureWeight, marketCapWeight, growthWeight, maxWeight, minWeight float64) (Config, error) {
	cfg := Config{
		ExposureWeight:  exposureWeight,
		MarketCapWeight: marketCapWeight,
		GrowthWeight:    growthWeight,
		MaxWeight:       maxWeight,
		MinWeight:       minWeight,
		Mode:            ModeClipRenormalize,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithMode returns a copy using the given reconciliation mode
func (c Config) WithMode(mode Mode) Config {
	c.Mode = mode
	return c
}

// Validate checks factor weights, bounds and mode.
// Feasibility of the bounds (min*n <= 1 <= max*n) depends on n and is
// resolved at calculation time.
func (c Config) Validate() error {
	factors := []struct {
		field string
		value float64
	}{
		{"exposure_weight", c.ExposureWeight},
		{"market_cap_weight", c.MarketCapWeight},
		{"growth_weight", c.GrowthWeight},
	}

	sum := 0.0
	for _, f := range factors {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return &ConfigError{Field: f.field, Message: "must be a finite value >= 0"}
		}
		sum += f.value
	}

	if math.Abs(sum-1.0) > factorSumTolerance {
		return &ConfigError{
			Field:   "factor_weights",
			Message: fmt.Sprintf("sum must be 1.0 (got %.10f)", sum),
		}
	}

	if !inOpenUnit(c.MaxWeight) {
		return &ConfigError{Field: "max_position", Message: "must be in (0, 1)"}
	}
	if !inOpenUnit(c.MinWeight) {
		return &ConfigError{Field: "min_position", Message: "must be in (0, 1)"}
	}
	if c.MinWeight > c.MaxWeight {
		return &ConfigError{Field: "min_position", Message: "must be <= max_position"}
	}

	switch c.Mode {
	case "", ModeClipRenormalize, ModeWaterFill:
	default:
		return &ConfigError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", c.Mode)}
	}

	return nil
}

// ParseMode converts a CLI/YAML string to a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeClipRenormalize:
		return ModeClipRenormalize, nil
	case ModeWaterFill:
		return ModeWaterFill, nil
	default:
		return "", &ConfigError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", s)}
	}
}

func (c Config) mode() Mode {
	if c.Mode == "" {
		return ModeClipRenormalize
	}
	return c.Mode
}

func inOpenUnit(v float64) bool {
	return v > 0 && v < 1
}
