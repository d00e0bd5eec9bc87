package report

import (
	"fmt"
	"io"

	"github.com/viant/schedsim/model/process"
	"github.com/viant/schedsim/progress"
	"github.com/viant/schedsim/service/memory"
)

// SMI is the data behind process-smi
type SMI struct {
	CPU      CPU
	Memory   memory.Summary
	Resident []process.Snapshot
}

// WriteProcessSMI renders CPU and memory usage with the footprint of every resident process
func WriteProcessSMI(w io.Writer, smi *SMI) error {
	memoryUtil := 0.0
	if smi.Memory.Total > 0 {
		memoryUtil = float64(smi.Memory.Used) / float64(smi.Memory.Total) * 100
	}
	_, err := fmt.Fprintf(w, "%s\n| PROCESS-SMI V01.00 |\n%s\nCPU-Util: %.2f%%\nMemory Usage: %dB / %dB\nMemory Util: %.2f%%\n\n%s\nRunning processes and memory usage:\n%s\n",
		separator, separator, smi.CPU.Utilization(), smi.Memory.Used, smi.Memory.Total, memoryUtil, separator, separator)
	if err != nil {
		return err
	}
	for _, snapshot := range smi.Resident {
		if _, err = fmt.Fprintf(w, "%s %dB\n", snapshot.Name, snapshot.Footprint); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, separator+"\n")
	return err
}

// VMStat is the data behind vmstat
type VMStat struct {
	Memory   memory.Summary
	Counters progress.Counters
}

// WriteVMStat renders memory and cpu tick totals with paging traffic
func WriteVMStat(w io.Writer, v *VMStat) error {
	c := v.Counters
	_, err := fmt.Fprintf(w, "%12d B total memory\n%12d B used memory\n%12d B free memory\n%12d idle cpu ticks\n%12d active cpu ticks\n%12d total cpu ticks\n%12d num paged in\n%12d num paged out\n",
		v.Memory.Total, v.Memory.Used, v.Memory.Free, c.IdleTicks, c.ActiveTicks, c.TotalTicks, c.PagedIn, c.PagedOut)
	return err
}
