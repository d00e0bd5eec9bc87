package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/viant/schedsim"
	"github.com/viant/schedsim/internal/logging"
	"github.com/viant/schedsim/internal/shell"
)

func main() {
	configURL := flag.String("config", "config.txt", "configuration file, legacy key/value or .yaml")
	logFile := flag.String("log", "", "log file, stderr when empty")
	traceFile := flag.String("trace", "", "write OpenTelemetry spans to file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initialize := func(ctx context.Context) (*schedsim.Service, error) {
		config, err := schedsim.LoadConfig(ctx, *configURL)
		if err != nil {
			return nil, err
		}
		var options []schedsim.Option
		if *logFile != "" {
			f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, err
			}
			options = append(options, schedsim.WithLogger(logging.New(f, config.LogLevel, "schedsim")))
		} else {
			// keep the console readable
			options = append(options, schedsim.WithLogger(logging.New(os.Stderr, "error", "schedsim")))
		}
		if *traceFile != "" {
			options = append(options, schedsim.WithTracing("schedsim", "0.1.0", *traceFile))
		}
		return schedsim.New(config, options...)
	}

	if err := shell.New(os.Stdin, os.Stdout, initialize).Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
