package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/viant/schedsim/internal/clock"
	"github.com/viant/schedsim/service/memory"
)

// MemorySnapshot is the data behind a memory_stamp_<cycle>.txt file
type MemorySnapshot struct {
	SessionID string
	Cycle     uint64
	Timestamp time.Time
	Summary   memory.Summary
	Regions   []memory.Region
}

// SnapshotName returns the file name for cycle
func SnapshotName(cycle uint64) string {
	return "memory_stamp_" + strconv.FormatUint(cycle, 10) + ".txt"
}

// WriteMemorySnapshot renders the layout top down, highest address first.
func WriteMemorySnapshot(w io.Writer, s *MemorySnapshot) error {
	if _, err := fmt.Fprintf(w, "Timestamp: %s\n", clock.Stamp(s.Timestamp)); err != nil {
		return err
	}
	if err := writeSession(w, s.SessionID); err != nil {
		return err
	}
	// fragmentation is printed in bytes under the KB label
	_, err := fmt.Fprintf(w, "Number of processes in memory: %d\nTotal external fragmentation in KB: %d\n\n----end---- = %d\n\n",
		s.Summary.Resident, s.Summary.Fragmentation, s.Summary.Total)
	if err != nil {
		return err
	}
	for i := len(s.Regions) - 1; i >= 0; i-- {
		region := s.Regions[i]
		if _, err = fmt.Fprintf(w, "%d\nP%d\n%d\n\n", region.End, region.ProcessID, region.Start); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "----start---- = 0\n")
	return err
}
