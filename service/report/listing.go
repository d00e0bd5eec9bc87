package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/viant/schedsim/internal/clock"
	"github.com/viant/schedsim/model/process"
)

const separator = "-----------------------------------------"

// CPU describes core usage at one instant
type CPU struct {
	Cores int
	Used  int
}

// Utilization returns the busy core percentage
func (c CPU) Utilization() float64 {
	if c.Cores == 0 || c.Used <= 0 {
		return 0
	}
	return float64(c.Used) / float64(c.Cores) * 100
}

// Available returns the idle core count
func (c CPU) Available() int {
	return c.Cores - c.Used
}

// Listing is the data behind screen -ls and report-util
type Listing struct {
	// SessionID is printed by the utilisation report only
	SessionID string
	CPU       CPU
	Running   []process.Snapshot
	Finished  []process.Snapshot
}

// WriteCPU renders the core usage header
func WriteCPU(w io.Writer, cpu CPU) error {
	_, err := fmt.Fprintf(w, "CPU Cores: %d\nCPU Utilization: %.2f%%\nCores used: %d\nCores available: %d\n",
		cpu.Cores, cpu.Utilization(), cpu.Used, cpu.Available())
	return err
}

// WriteListing renders the screen -ls output
func WriteListing(w io.Writer, listing *Listing) error {
	if err := WriteCPU(w, listing.CPU); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n"+separator+"\n"+formatProcesses(listing))
	return err
}

// WriteUtilReport renders the report-util file content
func WriteUtilReport(w io.Writer, listing *Listing) error {
	if _, err := io.WriteString(w, "Console Report\n"); err != nil {
		return err
	}
	if err := writeSession(w, listing.SessionID); err != nil {
		return err
	}
	if _, err := io.WriteString(w, separator+"\n"); err != nil {
		return err
	}
	if err := WriteCPU(w, listing.CPU); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n"+formatProcesses(listing))
	return err
}

func writeSession(w io.Writer, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	_, err := io.WriteString(w, "Session: "+sessionID+"\n")
	return err
}

func formatProcesses(listing *Listing) string {
	if len(listing.Running) == 0 && len(listing.Finished) == 0 {
		return "No processes to list.\n"
	}
	sb := strings.Builder{}
	sb.WriteString("Running Processes:\n")
	for _, snapshot := range listing.Running {
		sb.WriteString(RunningLine(snapshot))
	}
	if len(listing.Running) == 0 {
		sb.WriteString("No running processes.\n")
	}
	sb.WriteString("\nFinished Processes:\n")
	for _, snapshot := range listing.Finished {
		sb.WriteString(FinishedLine(snapshot))
	}
	if len(listing.Finished) == 0 {
		sb.WriteString("No finished processes.\n")
	}
	return sb.String()
}

// RunningLine formats one running process
func RunningLine(s process.Snapshot) string {
	return s.Name + "\t" + clock.Stamp(s.CreatedAt) + "\tCore: " + strconv.Itoa(s.Core) + "\t" + progressOf(s) + "\n"
}

// FinishedLine formats one terminated or stopped process
func FinishedLine(s process.Snapshot) string {
	label := "Finished"
	if s.State == process.StateStopped {
		label = "Stopped"
	}
	return s.Name + "\t" + clock.Stamp(s.CreatedAt) + "\t" + label + "\t" + progressOf(s) + "\n"
}

func progressOf(s process.Snapshot) string {
	return strconv.FormatUint(s.Cursor, 10) + "/" + strconv.FormatUint(s.Total, 10)
}

// WriteProcess renders the status of a single process as shown in a screen session
func WriteProcess(w io.Writer, s process.Snapshot) error {
	if s.State == process.StateTerminated {
		_, err := io.WriteString(w, "Finished!\n")
		return err
	}
	_, err := fmt.Fprintf(w, "Process: %q\nID: %d\nState: %s\nCurrent Line of Instruction: %d\nLines of Code: %d\n",
		s.Name, s.ID, s.State, s.Cursor, s.Total)
	if err == nil && s.Unplaceable {
		_, err = io.WriteString(w, "Memory: footprint exceeds total memory, waiting indefinitely\n")
	}
	return err
}
