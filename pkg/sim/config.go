// Package sim is the synthetic trial harness for the reputation engine.
// Each trial draws hidden object qualities and per-user rating noise, has
// every user rate every object, runs the engine from uniform user
// reputation, and reports how far the estimate landed from the truth.
package sim

import (
	"errors"
	"fmt"
	"math"
)

const (
	QualityMaxDefault = 10.0
	ErrorMaxDefault   = 1.0
	TrialsDefault     = 100
	ParallelDefault   = 1
)

var ErrInvalidConfig = errors.New("invalid simulation config")

// Config describes a batch of synthetic trials.
type Config struct {
	Objects    int     `json:"objects" yaml:"objects"`
	Users      int     `json:"users" yaml:"users"`
	Trials     int     `json:"trials" yaml:"trials"`
	QualityMax float64 `json:"quality_max" yaml:"quality_max"`
	ErrorMax   float64 `json:"error_max" yaml:"error_max"`
	Seed       uint64  `json:"seed" yaml:"seed"`
	Parallel   int     `json:"parallel" yaml:"parallel"`
}

// DefaultConfig returns the reference harness settings. Objects and users
// are left for the caller.
func DefaultConfig() Config {
	return Config{
		Trials:     TrialsDefault,
		QualityMax: QualityMaxDefault,
		ErrorMax:   ErrorMaxDefault,
		Parallel:   ParallelDefault,
	}
}

// Validate checks the config can drive a run.
func (c Config) Validate() error {
	if c.Objects <= 0 || c.Users <= 0 {
		return fmt.Errorf("objects (%d) and users (%d) must be positive: %w", c.Objects, c.Users, ErrInvalidConfig)
	}
	if c.Trials <= 0 {
		return fmt.Errorf("trials must be positive, got %d: %w", c.Trials, ErrInvalidConfig)
	}
	if !(c.QualityMax > 0) || math.IsInf(c.QualityMax, 0) || !(c.ErrorMax >= 0) {
		return fmt.Errorf("quality max %g / error max %g out of range: %w", c.QualityMax, c.ErrorMax, ErrInvalidConfig)
	}
	if c.Parallel <= 0 {
		return fmt.Errorf("parallel must be positive, got %d: %w", c.Parallel, ErrInvalidConfig)
	}
	return nil
}
