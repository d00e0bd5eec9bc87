package schedsim

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/bits"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/schedsim/service/memory"
	"github.com/viant/schedsim/service/scheduler"
	"gopkg.in/yaml.v3"
)

// ErrConfigInvalid is wrapped by every configuration loading or validation failure.
var ErrConfigInvalid = errors.New("config invalid")

const maxValue = uint64(1) << 32

// Config is a serialisable representation of the simulator configuration. It
// can be populated from YAML or from the legacy whitespace separated
// config.txt format; keys match in both.
type Config struct {
	NumCPU           int    `json:"numCpu" yaml:"num-cpu"`
	Scheduler        string `json:"scheduler" yaml:"scheduler"`
	QuantumCycles    uint64 `json:"quantumCycles" yaml:"quantum-cycles"`
	BatchProcessFreq uint64 `json:"batchProcessFreq" yaml:"batch-process-freq"`
	MinIns           uint64 `json:"minIns" yaml:"min-ins"`
	MaxIns           uint64 `json:"maxIns" yaml:"max-ins"`
	DelaysPerExec    uint64 `json:"delaysPerExec" yaml:"delays-per-exec"`

	MaxOverallMem uint64 `json:"maxOverallMem" yaml:"max-overall-mem"`
	MemPerFrame   uint64 `json:"memPerFrame" yaml:"mem-per-frame"`
	MinMemPerProc uint64 `json:"minMemPerProc" yaml:"min-mem-per-proc"`
	MaxMemPerProc uint64 `json:"maxMemPerProc" yaml:"max-mem-per-proc"`
	Allocator     string `json:"allocator" yaml:"allocator"`

	TickInterval time.Duration `json:"tickInterval" yaml:"tick-interval"`
	StepSleepMin time.Duration `json:"stepSleepMin" yaml:"step-sleep-min"`
	StepSleepMax time.Duration `json:"stepSleepMax" yaml:"step-sleep-max"`
	// MaxResident caps memory resident processes; 0 derives it from max-overall-mem / min-mem-per-proc.
	MaxResident int `json:"maxResident" yaml:"max-resident"`

	SnapshotURL   string `json:"snapshotUrl" yaml:"snapshot-url"`
	SnapshotEvery uint64 `json:"snapshotEvery" yaml:"snapshot-every"`
	ReportURL     string `json:"reportUrl" yaml:"report-url"`
	LogLevel      string `json:"logLevel" yaml:"log-level"`
}

// DefaultConfig returns a Config populated with the default values
func DefaultConfig() *Config {
	return &Config{
		NumCPU:           4,
		Scheduler:        string(scheduler.RoundRobin),
		QuantumCycles:    5,
		BatchProcessFreq: 1,
		MinIns:           1000,
		MaxIns:           2000,
		DelaysPerExec:    0,
		MaxOverallMem:    16384,
		MemPerFrame:      16,
		MinMemPerProc:    4096,
		MaxMemPerProc:    4096,
		Allocator:        string(memory.ModeFlat),
		TickInterval:     100 * time.Millisecond,
		StepSleepMin:     20 * time.Millisecond,
		StepSleepMax:     200 * time.Millisecond,
		ReportURL:        "csopesy-log.txt",
		LogLevel:         "info",
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrConfigInvalid)
	}
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrConfigInvalid}, args...)...))
	}
	if c.NumCPU < 1 || c.NumCPU > 128 {
		invalid("num-cpu %d out of range [1,128]", c.NumCPU)
	}
	switch scheduler.Discipline(c.Scheduler) {
	case scheduler.FCFS:
	case scheduler.RoundRobin:
		if !inRange(c.QuantumCycles, 1, maxValue) {
			invalid("quantum-cycles %d out of range [1,%d]", c.QuantumCycles, maxValue)
		}
	default:
		invalid("scheduler %q must be fcfs or rr", c.Scheduler)
	}
	if !inRange(c.BatchProcessFreq, 1, maxValue) {
		invalid("batch-process-freq %d out of range [1,%d]", c.BatchProcessFreq, maxValue)
	}
	if !inRange(c.MinIns, 1, maxValue) {
		invalid("min-ins %d out of range [1,%d]", c.MinIns, maxValue)
	}
	if !inRange(c.MaxIns, 1, maxValue) {
		invalid("max-ins %d out of range [1,%d]", c.MaxIns, maxValue)
	}
	if c.MinIns > c.MaxIns {
		invalid("min-ins %d exceeds max-ins %d", c.MinIns, c.MaxIns)
	}
	if c.DelaysPerExec > maxValue {
		invalid("delays-per-exec %d out of range [0,%d]", c.DelaysPerExec, maxValue)
	}
	for _, candidate := range []struct {
		key   string
		value uint64
	}{
		{"max-overall-mem", c.MaxOverallMem},
		{"mem-per-frame", c.MemPerFrame},
		{"min-mem-per-proc", c.MinMemPerProc},
		{"max-mem-per-proc", c.MaxMemPerProc},
	} {
		if !isPowerOfTwo(candidate.value) || !inRange(candidate.value, 2, maxValue) {
			invalid("%s %d must be a power of two in [2,%d]", candidate.key, candidate.value, maxValue)
		}
	}
	if c.MemPerFrame > 0 && c.MaxOverallMem%c.MemPerFrame != 0 {
		invalid("mem-per-frame %d does not divide max-overall-mem %d", c.MemPerFrame, c.MaxOverallMem)
	}
	if c.MinMemPerProc > c.MaxMemPerProc {
		invalid("min-mem-per-proc %d exceeds max-mem-per-proc %d", c.MinMemPerProc, c.MaxMemPerProc)
	}
	switch memory.Mode(c.Allocator) {
	case memory.ModeFlat, memory.ModePaging:
	default:
		invalid("allocator %q must be flat or paging", c.Allocator)
	}
	if c.TickInterval <= 0 {
		invalid("tick-interval %v must be positive", c.TickInterval)
	}
	if c.StepSleepMin < 0 || c.StepSleepMax < c.StepSleepMin {
		invalid("step sleep range [%v,%v] is invalid", c.StepSleepMin, c.StepSleepMax)
	}
	if c.MaxResident < 0 {
		invalid("max-resident %d must not be negative", c.MaxResident)
	}
	return errors.Join(errs...)
}

// SchedulerConfig derives the scheduler configuration
func (c *Config) SchedulerConfig() scheduler.Config {
	maxResident := c.MaxResident
	if maxResident == 0 && c.MinMemPerProc > 0 {
		maxResident = int(c.MaxOverallMem / c.MinMemPerProc)
	}
	return scheduler.Config{
		Cores:        c.NumCPU,
		Discipline:   scheduler.Discipline(c.Scheduler),
		Quantum:      c.QuantumCycles,
		TickInterval: c.TickInterval,
		MaxResident:  maxResident,
	}
}

// MemoryConfig derives the memory manager configuration
func (c *Config) MemoryConfig() memory.Config {
	return memory.Config{
		Total:         c.MaxOverallMem,
		FrameSize:     c.MemPerFrame,
		MinPerProcess: c.MinMemPerProc,
		MaxPerProcess: c.MaxMemPerProc,
		Mode:          memory.Mode(c.Allocator),
	}
}

func inRange(value, min, max uint64) bool {
	return value >= min && value <= max
}

func isPowerOfTwo(value uint64) bool {
	return value > 0 && bits.OnesCount64(value) == 1
}

// LoadConfig reads the configuration from URL through afs. Files with a .yaml or
// .yml extension are decoded as YAML, anything else as the legacy key/value
// format. Unset keys keep their default values; the result is validated.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	return loadConfig(ctx, afs.New(), URL)
}

func loadConfig(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	config := DefaultConfig()
	switch strings.ToLower(path.Ext(URL)) {
	case ".yaml", ".yml":
		err = DecodeYAML(data, config)
	default:
		err = DecodeLegacy(data, config)
	}
	if err != nil {
		return nil, err
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DecodeYAML decodes data into config rejecting unknown keys
func DecodeYAML(data []byte, config *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

// DecodeLegacy decodes the config.txt format: one "key value" pair per line,
// string values optionally double quoted, blank lines and # comments ignored.
func DecodeLegacy(data []byte, config *Config) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return fmt.Errorf("%w: line %d: expected \"key value\", got %q", ErrConfigInvalid, lineNo, line)
		}
		key, value := fields[0], fields[1]
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		}
		if err := config.set(key, value); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrConfigInvalid, lineNo, err)
		}
	}
	return scanner.Err()
}

func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "num-cpu":
		c.NumCPU, err = strconv.Atoi(value)
	case "scheduler":
		c.Scheduler = value
	case "quantum-cycles":
		c.QuantumCycles, err = strconv.ParseUint(value, 10, 64)
	case "batch-process-freq":
		c.BatchProcessFreq, err = strconv.ParseUint(value, 10, 64)
	case "min-ins":
		c.MinIns, err = strconv.ParseUint(value, 10, 64)
	case "max-ins":
		c.MaxIns, err = strconv.ParseUint(value, 10, 64)
	case "delays-per-exec":
		c.DelaysPerExec, err = strconv.ParseUint(value, 10, 64)
	case "max-overall-mem":
		c.MaxOverallMem, err = strconv.ParseUint(value, 10, 64)
	case "mem-per-frame":
		c.MemPerFrame, err = strconv.ParseUint(value, 10, 64)
	case "min-mem-per-proc":
		c.MinMemPerProc, err = strconv.ParseUint(value, 10, 64)
	case "max-mem-per-proc":
		c.MaxMemPerProc, err = strconv.ParseUint(value, 10, 64)
	case "allocator":
		c.Allocator = value
	case "tick-interval":
		c.TickInterval, err = time.ParseDuration(value)
	case "step-sleep-min":
		c.StepSleepMin, err = time.ParseDuration(value)
	case "step-sleep-max":
		c.StepSleepMax, err = time.ParseDuration(value)
	case "max-resident":
		c.MaxResident, err = strconv.Atoi(value)
	case "snapshot-url":
		c.SnapshotURL = value
	case "snapshot-every":
		c.SnapshotEvery, err = strconv.ParseUint(value, 10, 64)
	case "report-url":
		c.ReportURL = value
	case "log-level":
		c.LogLevel = value
	default:
		return fmt.Errorf("unknown parameter %q", key)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
