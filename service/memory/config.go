package memory

import (
	"errors"
	"fmt"
)

// Mode selects the placement policy
type Mode string

const (
	// ModeFlat requires a process footprint to occupy contiguous frames.
	ModeFlat Mode = "flat"
	// ModePaging places a footprint on any free frames.
	ModePaging Mode = "paging"
)

// Config represents memory manager configuration
type Config struct {
	// Total is the size of the whole memory in bytes
	Total uint64
	// FrameSize is the allocation granularity in bytes
	FrameSize uint64
	// MinPerProcess is the nominal per-process size used for flat accounting
	MinPerProcess uint64
	// MaxPerProcess bounds a paged footprint
	MaxPerProcess uint64
	Mode          Mode
}

// DefaultConfig returns the default memory configuration
func DefaultConfig() Config {
	return Config{
		Total:         16384,
		FrameSize:     16,
		MinPerProcess: 4096,
		MaxPerProcess: 4096,
		Mode:          ModeFlat,
	}
}

// Frames returns the number of frames in the table
func (c Config) Frames() int {
	if c.FrameSize == 0 {
		return 0
	}
	return int(c.Total / c.FrameSize)
}

// FramesFor returns the frames needed to hold size bytes (ceiling division).
func (c Config) FramesFor(size uint64) int {
	if c.FrameSize == 0 {
		return 0
	}
	return int((size + c.FrameSize - 1) / c.FrameSize)
}

// Validate checks structural consistency; range and power of two rules are
// enforced by the engine configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Total == 0 {
		errs = append(errs, fmt.Errorf("total memory must be > 0"))
	}
	if c.FrameSize == 0 {
		errs = append(errs, fmt.Errorf("frame size must be > 0"))
	} else if c.Total%c.FrameSize != 0 {
		errs = append(errs, fmt.Errorf("frame size %d must divide total memory %d", c.FrameSize, c.Total))
	}
	if c.MaxPerProcess < c.MinPerProcess {
		errs = append(errs, fmt.Errorf("max per process %d is below min per process %d", c.MaxPerProcess, c.MinPerProcess))
	}
	switch c.Mode {
	case ModeFlat, ModePaging:
	default:
		errs = append(errs, fmt.Errorf("unsupported allocation mode: %q", c.Mode))
	}
	return errors.Join(errs...)
}
