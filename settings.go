package lsm

import (
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/halcwb/LSM/driver"
)

// Settings tune the behavior of a database. Zero values are replaced by the
// defaults on Open.
type Settings struct {
	// AutoMergeEnabled starts a background merge cycle whenever a commit
	// pushes the active set past AutoMergeMinimumSegments.
	AutoMergeEnabled bool `yaml:"auto_merge_enabled"`

	// AutoMergeMinimumSegments is the active-set size that triggers an
	// automatic merge.
	AutoMergeMinimumSegments int `yaml:"auto_merge_minimum_segments"`

	// BloomFPRate is the false-positive rate of per-segment bloom
	// filters.
	BloomFPRate float64 `yaml:"bloom_fp_rate"`
}

// DefaultSettings returns the settings used when none are provided.
func DefaultSettings() Settings {
	return Settings{
		AutoMergeEnabled:         true,
		AutoMergeMinimumSegments: 4,
		BloomFPRate:              0.01,
	}
}

// withDefaults replaces zero values by the defaults.
func (s Settings) withDefaults() Settings {
	def := DefaultSettings()

	if s.AutoMergeMinimumSegments == 0 {
		s.AutoMergeMinimumSegments = def.AutoMergeMinimumSegments
	}

	if s.BloomFPRate == 0 {
		s.BloomFPRate = def.BloomFPRate
	}

	return s
}

// ParseSettings decodes yaml-encoded settings on top of the defaults.
func ParseSettings(data []byte) (Settings, error) {
	s := DefaultSettings()

	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	if s.AutoMergeMinimumSegments < 2 {
		return Settings{}, fmt.Errorf("auto_merge_minimum_segments must be at least 2, got %d",
			s.AutoMergeMinimumSegments)
	}

	if s.BloomFPRate <= 0 || s.BloomFPRate >= 1 {
		return Settings{}, fmt.Errorf("bloom_fp_rate must be in (0, 1), got %g", s.BloomFPRate)
	}

	return s, nil
}

// databaseOptions contains configuration options for database instances.
type databaseOptions struct {
	drv      driver.Driver
	log      *zap.Logger
	settings Settings
}

// Option is a function that configures database options.
type Option func(*databaseOptions)

// WithDriver substitutes the durable-storage backend. By default segments
// are stored as files in the directory passed to Open.
func WithDriver(drv driver.Driver) Option {
	return func(o *databaseOptions) {
		o.drv = drv
	}
}

// WithLogger sets the logger for background merge activity. Logging is off
// by default.
func WithLogger(log *zap.Logger) Option {
	return func(o *databaseOptions) {
		o.log = log
	}
}

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(o *databaseOptions) {
		o.settings = s
	}
}
