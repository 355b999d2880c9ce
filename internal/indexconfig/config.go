package indexconfig

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/wonny/futureindex/internal/weighting"
)

// DateLayout is the format of inception dates in the YAML file
const DateLayout = "2006-01-02"

// DefaultSchedule rebalances at 06:00 on the first day of each quarter (cron with seconds)
const DefaultSchedule = "0 0 6 1 1,4,7,10 *"

// Config는 인덱스 정의 파일 전체
type Config struct {
	Indices []Index `yaml:"indices" json:"indices"`

	// baseDir resolves relative universe paths; not part of the hash
	baseDir string
}

// Index 단일 인덱스 정의
type Index struct {
	Name          string           `yaml:"name" json:"name"` // e.g. SPACEINFRA
	DisplayName   string           `yaml:"display_name" json:"display_name"`
	Description   string           `yaml:"description" json:"description"`
	InceptionDate string           `yaml:"inception_date" json:"inception_date"` // YYYY-MM-DD
	Universe      string           `yaml:"universe" json:"universe"`             // path, relative to the config file
	Weighting     weighting.Config `yaml:"weighting" json:"weighting"`
	Growth        GrowthPolicy     `yaml:"growth" json:"growth"`
	Schedule      string           `yaml:"schedule" json:"schedule"` // cron, seconds field first

	baseDir string
}

// GrowthPolicy supplies estimated growth when fewer than two revenue periods exist
type GrowthPolicy struct {
	DefaultEstimate float64            `yaml:"default_estimate" json:"default_estimate"` // percent
	Estimates       map[string]float64 `yaml:"estimates" json:"estimates"`               // ticker → percent
}

// Estimate returns the per-ticker estimate, or the default
func (p GrowthPolicy) Estimate(ticker string) float64 {
	if v, ok := p.Estimates[strings.ToUpper(ticker)]; ok {
		return v
	}
	return p.DefaultEstimate
}

// Inception parses InceptionDate
func (i Index) Inception() (time.Time, error) {
	return time.Parse(DateLayout, i.InceptionDate)
}

// UniversePath resolves the universe file against the config file's directory
func (i Index) UniversePath() string {
	if i.Universe == "" || filepath.IsAbs(i.Universe) || i.baseDir == "" {
		return i.Universe
	}
	return filepath.Join(i.baseDir, i.Universe)
}

// CronSchedule returns Schedule or DefaultSchedule
func (i Index) CronSchedule() string {
	if i.Schedule == "" {
		return DefaultSchedule
	}
	return i.Schedule
}

// NextRebalance returns the first scheduled rebalance after t
func (i Index) NextRebalance(t time.Time) (time.Time, error) {
	sched, err := scheduleParser.Parse(i.CronSchedule())
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t), nil
}

// Find returns the index with the given name (case-insensitive)
func (c *Config) Find(name string) (*Index, bool) {
	for idx := range c.Indices {
		if strings.EqualFold(c.Indices[idx].Name, name) {
			return &c.Indices[idx], true
		}
	}
	return nil, false
}

// Names lists configured index names in file order
func (c *Config) Names() []string {
	names := make([]string, len(c.Indices))
	for i, idx := range c.Indices {
		names[i] = idx.Name
	}
	return names
}
