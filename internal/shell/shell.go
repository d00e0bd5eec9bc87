// Package shell implements the interactive operator console.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/viant/schedsim"
	"github.com/viant/schedsim/service/report"
)

const (
	banner = `
  ____   ____ _   _ _____ ____  ____ ___ __  __
 / ___| / ___| | | | ____|  _ \/ ___|_ _|  \/  |
 \___ \| |   | |_| |  _| | | | \___ \| || |\/| |
  ___) | |___|  _  | |___| |_| |___) | || |  | |
 |____/ \____|_| |_|_____|____/|____/___|_|  |_|
`
	green  = "\033[32m"
	yellow = "\033[33m"
	reset  = "\033[0m"
)

// Initializer builds the simulator on the initialize command
type Initializer func(ctx context.Context) (*schedsim.Service, error)

// Shell reads operator commands line by line and drives a simulator
type Shell struct {
	scanner    *bufio.Scanner
	out        io.Writer
	initialize Initializer
	srv        *schedsim.Service
}

// New creates a shell reading commands from in and writing to out
func New(in io.Reader, out io.Writer, initialize Initializer) *Shell {
	return &Shell{scanner: bufio.NewScanner(in), out: out, initialize: initialize}
}

// Service returns the simulator, nil before initialize
func (s *Shell) Service() *schedsim.Service {
	return s.srv
}

// Run processes commands until exit, end of input or ctx cancellation, then
// shuts the simulator down.
func (s *Shell) Run(ctx context.Context) error {
	s.header()
	defer s.shutdown()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		args, ok := s.read("Enter command: ")
		if !ok {
			return s.scanner.Err()
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			s.printf("%s command recognized. Thank you! Exiting program.\n", args[0])
			return nil
		}
		if err := s.execute(ctx, args); err != nil {
			s.printf("Error: %v\n", err)
		}
	}
}

func (s *Shell) shutdown() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func (s *Shell) read(prompt string) ([]string, bool) {
	s.printf("%s", prompt)
	if !s.scanner.Scan() {
		return nil, false
	}
	return strings.Fields(s.scanner.Text()), true
}

func (s *Shell) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) header() {
	s.printf("%s\n%sHello, Welcome to CSOPESY command-line interface.%s\n%sType 'exit' to quit, 'clear' to clear the screen.%s\n\n",
		banner, green, reset, yellow, reset)
}

func (s *Shell) execute(ctx context.Context, args []string) error {
	command := args[0]
	if command == "clear" {
		s.printf("\033[H\033[2J")
		s.header()
		return nil
	}
	if s.srv == nil {
		switch command {
		case "initialize":
			srv, err := s.initialize(ctx)
			if err != nil {
				return err
			}
			s.srv = srv
			srv.Start(ctx)
			s.printf("Menu initialized.\n")
		case "screen", "scheduler-test", "scheduler-stop", "report-util", "process-smi", "vmstat":
			s.printf("Please run the \"initialize\" command first\n")
		default:
			s.printf("Command %s not recognized. Please try again.\n", command)
		}
		return nil
	}
	runtime := s.srv.Runtime()
	switch command {
	case "initialize":
		s.printf("Already initialized.\n")
	case "screen":
		return s.screen(ctx, args)
	case "scheduler-test":
		if !runtime.StartBatch() {
			s.printf("Scheduler test is already running.\n")
			return nil
		}
		s.printf("Running scheduler test\n")
	case "scheduler-stop":
		if !runtime.StopBatch() {
			s.printf("Scheduler test is not running.\n")
			return nil
		}
		s.printf("Stopping scheduler test\n")
	case "report-util":
		s.printf("Generating report...\n")
		URL, err := s.srv.ReportUtil(ctx)
		if err != nil {
			return err
		}
		s.printf("Report generated at %s\n", URL)
	case "process-smi":
		return s.srv.ProcessSMI(ctx, s.out)
	case "vmstat":
		return s.srv.VMStat(s.out)
	default:
		s.printf("Command %s not recognized. Please try again.\n", command)
	}
	return nil
}

func (s *Shell) screen(ctx context.Context, args []string) error {
	switch {
	case len(args) == 2 && args[1] == "-ls":
		return s.srv.WriteListing(ctx, s.out)
	case len(args) == 3 && args[1] == "-s":
		name := args[2]
		if _, err := s.srv.Runtime().Status(ctx, name); err == nil {
			s.printf("Console %q already exists.\n", name)
			return nil
		}
		if _, err := s.srv.Runtime().Submit(ctx, name); err != nil {
			return err
		}
		return s.session(ctx, name)
	case len(args) == 3 && args[1] == "-r":
		name := args[2]
		snapshot, err := s.srv.Runtime().Status(ctx, name)
		if err != nil || snapshot.State.IsFinal() {
			s.printf("Process %q not found.\n", name)
			return nil
		}
		s.printf("Reopening console %q\n", name)
		return s.session(ctx, name)
	case len(args) == 2 && args[1] != "-s" && args[1] != "-r",
		len(args) == 3:
		s.printf("Screen command %q not recognized. Try again.\n", args[1])
	default:
		s.printf("Usage: screen [-r | -s | -ls] [name]\n")
	}
	return nil
}

// session runs the nested console attached to process name until exit.
func (s *Shell) session(ctx context.Context, name string) error {
	if err := s.showProcess(ctx, name); err != nil {
		return err
	}
	prompt := fmt.Sprintf("Console [%s] Enter a command: ", name)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		args, ok := s.read(prompt)
		if !ok {
			return s.scanner.Err()
		}
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "exit":
			return nil
		case "process-smi":
			if err := s.showProcess(ctx, name); err != nil {
				return err
			}
		default:
			s.printf("Command %s not recognized. Please try again.\n", args[0])
		}
	}
}

func (s *Shell) showProcess(ctx context.Context, name string) error {
	snapshot, err := s.srv.Runtime().Status(ctx, name)
	if err != nil {
		return fmt.Errorf("process %q: %w", name, err)
	}
	return report.WriteProcess(s.out, snapshot)
}
