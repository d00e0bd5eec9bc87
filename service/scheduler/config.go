package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// Discipline selects how long a dispatched descriptor keeps its core
type Discipline string

const (
	// FCFS runs a dispatched descriptor to completion.
	FCFS Discipline = "fcfs"
	// RoundRobin preempts after Quantum instructions.
	RoundRobin Discipline = "rr"
)

// Config holds scheduler parameters
type Config struct {
	Cores        int           `yaml:"cores" json:"cores"`
	Discipline   Discipline    `yaml:"discipline" json:"discipline"`
	Quantum      uint64        `yaml:"quantum" json:"quantum"`
	TickInterval time.Duration `yaml:"tickInterval" json:"tickInterval"`
	// MaxResident caps memory resident descriptors; 0 means unlimited.
	MaxResident int `yaml:"maxResident" json:"maxResident"`
}

// DefaultConfig returns a round robin, four core configuration
func DefaultConfig() Config {
	return Config{
		Cores:        4,
		Discipline:   RoundRobin,
		Quantum:      5,
		TickInterval: 100 * time.Millisecond,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	var errs []error
	if c.Cores < 1 || c.Cores > 128 {
		errs = append(errs, fmt.Errorf("cores %d out of range [1,128]", c.Cores))
	}
	switch c.Discipline {
	case FCFS:
	case RoundRobin:
		if c.Quantum == 0 {
			errs = append(errs, errors.New("round robin requires quantum > 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported discipline %q", c.Discipline))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval %v must be positive", c.TickInterval))
	}
	if c.MaxResident < 0 {
		errs = append(errs, fmt.Errorf("max resident %d must not be negative", c.MaxResident))
	}
	return errors.Join(errs...)
}

// quantum returns the per dispatch instruction bound, 0 meaning unbounded.
func (c Config) quantum() uint64 {
	if c.Discipline == FCFS {
		return 0
	}
	return c.Quantum
}
