package indexconfig

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var namePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,31}$`)

// scheduleParser matches the scheduler's cron.WithSeconds() format
var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	if len(cfg.Indices) == 0 {
		return ValidationError{"indices", "at least one index is required"}
	}

	seen := make(map[string]int, len(cfg.Indices))
	for i := range cfg.Indices {
		idx := &cfg.Indices[i]
		prefix := fmt.Sprintf("indices[%d]", i)

		if !namePattern.MatchString(idx.Name) {
			return ValidationError{prefix + ".name", "must be upper-case letters, digits or _ (2~32 chars)"}
		}
		if prev, dup := seen[idx.Name]; dup {
			return ValidationError{prefix + ".name", fmt.Sprintf("duplicates indices[%d]", prev)}
		}
		seen[idx.Name] = i

		if strings.TrimSpace(idx.DisplayName) == "" {
			return ValidationError{prefix + ".display_name", "required"}
		}
		if _, err := time.Parse(DateLayout, idx.InceptionDate); err != nil {
			return ValidationError{prefix + ".inception_date", "must be YYYY-MM-DD"}
		}
		if strings.TrimSpace(idx.Universe) == "" {
			return ValidationError{prefix + ".universe", "required"}
		}

		// 팩터 가중치 합 = 1.0, 포지션 범위 (0, 1)
		if err := idx.Weighting.Validate(); err != nil {
			return ValidationError{prefix + ".weighting", err.Error()}
		}

		if err := validateGrowth(idx.Growth); err != nil {
			return ValidationError{prefix + ".growth", err.Error()}
		}

		if idx.Schedule != "" {
			if _, err := scheduleParser.Parse(idx.Schedule); err != nil {
				return ValidationError{prefix + ".schedule", err.Error()}
			}
		}
	}

	return nil
}

func validateGrowth(p GrowthPolicy) error {
	if !isFinite(p.DefaultEstimate) {
		return fmt.Errorf("default_estimate must be finite")
	}
	for ticker, v := range p.Estimates {
		if ticker != strings.ToUpper(ticker) {
			return fmt.Errorf("estimates key %q must be upper-case", ticker)
		}
		if !isFinite(v) {
			return fmt.Errorf("estimates[%s] must be finite", ticker)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
