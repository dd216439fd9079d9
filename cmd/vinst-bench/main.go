// Command vinst-bench runs a bench of virtual instruments.
//
// A bench file declares the instruments, their parameters, physics and
// listen addresses. Every instrument gets its own TCP endpoint speaking the
// line-oriented command protocol, so any VISA-style client (or plain
// netcat) can talk to it.
//
// Usage:
//
//	vinst-bench -config bench.yaml [flags]
//
// Flags:
//
//	-config string  Bench configuration file (required)
//	-trace string   Write protocol trace events to this file (CBOR)
//	-verbose        Mirror trace events to stderr in human-readable form
//
// Examples:
//
//	# Run the bench and print the bound addresses
//	vinst-bench -config rc-lab.yaml
//
//	# Record a protocol trace for later analysis
//	vinst-bench -config rc-lab.yaml -trace session.vtrace
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vinst-lab/vinst-go/pkg/bench"
	"github.com/vinst-lab/vinst-go/pkg/trace"
)

func main() {
	configPath := flag.String("config", "", "Bench configuration file")
	tracePath := flag.String("trace", "", "Write protocol trace events to this file")
	verbose := flag.Bool("verbose", false, "Mirror trace events to stderr")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	if *configPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	config, err := bench.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load bench: %v", err)
	}

	logger, closeLogger, err := buildLogger(*tracePath, *verbose)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer closeLogger()

	b := bench.New(config, bench.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		log.Fatalf("Failed to start bench: %v", err)
	}

	log.Printf("Bench %q running", config.Bench)
	for _, inst := range config.Instruments {
		addr, err := b.Addr(inst.Name)
		if err != nil {
			continue
		}
		log.Printf("  %-12s %s", inst.Name, addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Printf("Received signal: %v", sig)
	if err := b.Stop(); err != nil {
		log.Printf("Error stopping bench: %v", err)
	}
}

// buildLogger assembles the trace logger from the -trace and -verbose
// flags. The returned func flushes and closes whatever was opened.
func buildLogger(tracePath string, verbose bool) (trace.Logger, func(), error) {
	var loggers []trace.Logger
	var fileLogger *trace.FileLogger

	if tracePath != "" {
		fl, err := trace.NewFileLogger(tracePath)
		if err != nil {
			return nil, nil, err
		}
		fileLogger = fl
		loggers = append(loggers, fl)
	}
	if verbose {
		slogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		loggers = append(loggers, trace.NewSlogLogger(slogger))
	}

	closeFn := func() {
		if fileLogger != nil {
			if err := fileLogger.Close(); err != nil {
				log.Printf("Error closing trace file: %v", err)
			}
		}
	}

	switch len(loggers) {
	case 0:
		return trace.NoopLogger{}, closeFn, nil
	case 1:
		return loggers[0], closeFn, nil
	default:
		return teeLogger(loggers), closeFn, nil
	}
}

// teeLogger fans one event out to several loggers.
type teeLogger []trace.Logger

func (t teeLogger) Log(ev trace.Event) {
	for _, l := range t {
		l.Log(ev)
	}
}
