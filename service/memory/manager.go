package memory

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viant/schedsim/internal/clock"
)

// noOwner marks a free frame; process ids start at 1.
const noOwner = 0

type frame struct {
	owner       int
	lastTouched time.Time
	seq         uint64
}

// Stats holds cumulative paging and eviction counters
type Stats struct {
	PagedIn   uint64 `json:"pagedIn"`
	PagedOut  uint64 `json:"pagedOut"`
	Evictions uint64 `json:"evictions"`
}

// Region is a run of consecutive frames held by one process, [Start, End) in bytes.
type Region struct {
	ProcessID int    `json:"processId"`
	Start     uint64 `json:"start"`
	End       uint64 `json:"end"`
	Frames    int    `json:"frames"`
}

// Summary is a point in time view of the frame table
type Summary struct {
	Mode          Mode   `json:"mode"`
	Total         uint64 `json:"total"`
	Used          uint64 `json:"used"`
	Free          uint64 `json:"free"`
	Resident      int    `json:"resident"`
	Fragmentation uint64 `json:"fragmentation"`
	Frames        int    `json:"frames"`
	FreeFrames    int    `json:"freeFrames"`
}

// Manager owns the frame table. All methods are safe for concurrent use.
type Manager struct {
	config    Config
	mu        sync.Mutex
	frames    []frame
	seq       uint64
	stats     Stats
	now       func() time.Time
	evictable func(processID int) bool
	onEvict   func(processID int)
	logger    *slog.Logger
}

// New creates a memory manager with every frame free
func New(config Config, options ...Option) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}
	m := &Manager{
		config: config,
		frames: make([]frame, config.Frames()),
		now:    clock.Now,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Config returns the manager configuration
func (m *Manager) Config() Config {
	return m.config
}

// Fits reports whether size could ever be placed in an empty table.
func (m *Manager) Fits(size uint64) bool {
	return m.required(size) <= len(m.frames)
}

func (m *Manager) required(size uint64) int {
	required := m.config.FramesFor(size)
	if required == 0 {
		required = 1
	}
	return required
}

// Allocate reserves frames for size bytes on behalf of processID. Allocation is
// all or nothing. When no placement exists the resident process with the oldest
// lastTouched stamp is evicted and the search retried once. Allocating for a
// resident process is a no-op that returns true.
func (m *Manager) Allocate(processID int, size uint64) bool {
	if processID <= noOwner {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isResident(processID) {
		return true
	}
	required := m.required(size)
	if required > len(m.frames) {
		return false
	}
	placement := m.place(required)
	if placement == nil {
		victim := m.oldestResident(processID)
		if victim == noOwner {
			return false
		}
		released := m.release(victim)
		m.stats.Evictions++
		m.logger.Warn("evicted resident process", "pid", victim, "frames", released, "for", processID)
		if m.onEvict != nil {
			m.onEvict(victim)
		}
		if placement = m.place(required); placement == nil {
			return false
		}
	}
	m.seq++
	stamp := m.now()
	for _, index := range placement {
		m.frames[index] = frame{owner: processID, lastTouched: stamp, seq: m.seq}
	}
	if m.config.Mode == ModePaging {
		m.stats.PagedIn += uint64(len(placement))
	}
	return true
}

// Free clears every frame held by processID. Freeing a non resident id is a no-op.
func (m *Manager) Free(processID int) {
	if processID <= noOwner {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(processID)
}

func (m *Manager) release(processID int) int {
	released := 0
	for i := range m.frames {
		if m.frames[i].owner == processID {
			m.frames[i] = frame{}
			released++
		}
	}
	if m.config.Mode == ModePaging {
		m.stats.PagedOut += uint64(released)
	}
	return released
}

func (m *Manager) place(required int) []int {
	if m.config.Mode == ModePaging {
		return m.anyFree(required)
	}
	return m.firstFit(required)
}

// firstFit returns the first run of required contiguous free frames.
func (m *Manager) firstFit(required int) []int {
	start, run := -1, 0
	for i := range m.frames {
		if m.frames[i].owner != noOwner {
			start, run = -1, 0
			continue
		}
		if start == -1 {
			start = i
		}
		run++
		if run == required {
			placement := make([]int, required)
			for j := range placement {
				placement[j] = start + j
			}
			return placement
		}
	}
	return nil
}

// anyFree returns the first required free frames scanning left to right.
func (m *Manager) anyFree(required int) []int {
	placement := make([]int, 0, required)
	for i := range m.frames {
		if m.frames[i].owner != noOwner {
			continue
		}
		placement = append(placement, i)
		if len(placement) == required {
			return placement
		}
	}
	return nil
}

// oldestResident returns the evictable resident process with the oldest stamp,
// never exclude; noOwner when there is none.
func (m *Manager) oldestResident(exclude int) int {
	victim := noOwner
	var oldest frame
	for _, f := range m.frames {
		if f.owner == noOwner || f.owner == exclude || f.owner == victim {
			continue
		}
		if m.evictable != nil && !m.evictable(f.owner) {
			continue
		}
		if victim == noOwner || f.lastTouched.Before(oldest.lastTouched) ||
			(f.lastTouched.Equal(oldest.lastTouched) && f.seq < oldest.seq) {
			victim, oldest = f.owner, f
		}
	}
	return victim
}

func (m *Manager) isResident(processID int) bool {
	for _, f := range m.frames {
		if f.owner == processID {
			return true
		}
	}
	return false
}

// IsResident reports whether processID holds at least one frame
func (m *Manager) IsResident(processID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isResident(processID)
}

// ResidentProcessCount returns the number of distinct processes holding frames
func (m *Manager) ResidentProcessCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.residentCount()
}

func (m *Manager) residentCount() int {
	seen := map[int]bool{}
	for _, f := range m.frames {
		if f.owner != noOwner {
			seen[f.owner] = true
		}
	}
	return len(seen)
}

// UsedMemory returns occupied bytes: resident count times the nominal process
// size in flat mode, occupied frames times frame size in paging mode.
func (m *Manager) UsedMemory() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usedMemory()
}

func (m *Manager) usedMemory() uint64 {
	if m.config.Mode == ModeFlat {
		return uint64(m.residentCount()) * m.config.MinPerProcess
	}
	used := 0
	for _, f := range m.frames {
		if f.owner != noOwner {
			used++
		}
	}
	return uint64(used) * m.config.FrameSize
}

// Fragmentation returns the free bytes outside the largest contiguous free run.
// Paging has no external fragmentation.
func (m *Manager) Fragmentation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fragmentation()
}

func (m *Manager) fragmentation() uint64 {
	if m.config.Mode == ModePaging {
		return 0
	}
	free, largest, run := 0, 0, 0
	for _, f := range m.frames {
		if f.owner != noOwner {
			run = 0
			continue
		}
		free++
		run++
		if run > largest {
			largest = run
		}
	}
	return uint64(free-largest) * m.config.FrameSize
}

// FramesOf returns the frame indexes held by processID in ascending order
func (m *Manager) FramesOf(processID int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []int
	for i, f := range m.frames {
		if f.owner == processID && processID != noOwner {
			result = append(result, i)
		}
	}
	return result
}

// Layout returns the occupied regions in ascending address order
func (m *Manager) Layout() []Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	var regions []Region
	for i, f := range m.frames {
		if f.owner == noOwner {
			continue
		}
		if n := len(regions); n > 0 && regions[n-1].ProcessID == f.owner && regions[n-1].End == uint64(i)*m.config.FrameSize {
			regions[n-1].End += m.config.FrameSize
			regions[n-1].Frames++
			continue
		}
		start := uint64(i) * m.config.FrameSize
		regions = append(regions, Region{ProcessID: f.owner, Start: start, End: start + m.config.FrameSize, Frames: 1})
	}
	return regions
}

// Summary returns occupancy figures in one consistent read
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := m.usedMemory()
	freeFrames := 0
	for _, f := range m.frames {
		if f.owner == noOwner {
			freeFrames++
		}
	}
	summary := Summary{
		Mode:          m.config.Mode,
		Total:         m.config.Total,
		Used:          used,
		Resident:      m.residentCount(),
		Fragmentation: m.fragmentation(),
		Frames:        len(m.frames),
		FreeFrames:    freeFrames,
	}
	if used < m.config.Total {
		summary.Free = m.config.Total - used
	}
	return summary
}

// Stats returns cumulative counters
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
