// Copyright 2016 Aleksandr Demakin. All rights reserved.

// shmstress validates the process mutex and shared memory segments.
// It creates a segment holding a mutex and a buffer, and runs M worker processes,
// each of them performing N iterations: lock, check, that all the bytes
// of the buffer are equal, fill the buffer with a new random byte, unlock.
// The program exits with a non-zero code, if any worker finds corrupted data.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/nxgtw/go-shm/internal/stress"
	"github.com/nxgtw/go-shm/shm"

	"github.com/pkg/errors"
)

const usage = `Using: "shmstress [flags] M N" where M number of processes and N stress test iteration number
flags:
`

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type options struct {
	size     int
	prefix   string
	metrics  bool
	logLevel string
	parent   bool
	worker   string
	id       int
}

func parseFlags(fs *flag.FlagSet, args []string) (options, []string, error) {
	var opts options
	fs.IntVar(&opts.size, "size", stress.DefaultDataSize, "shared buffer size in bytes")
	fs.StringVar(&opts.prefix, "prefix", stress.DefaultPrefix, "shared memory name prefix")
	fs.BoolVar(&opts.metrics, "metrics", false, "print metrics in the prometheus text format at the end")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug | info | warn | error")
	fs.BoolVar(&opts.parent, "parent", true, "run a worker in the parent process as well")
	// worker mode flags. set by the parent process for its children.
	fs.StringVar(&opts.worker, "worker", "", "")
	fs.IntVar(&opts.id, "id", 0, "")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	return opts, fs.Args(), nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

func positiveArgs(args []string) ([]int, error) {
	result := make([]int, len(args))
	for i, arg := range args {
		value, err := strconv.Atoi(arg)
		if err != nil || value <= 0 {
			return nil, errors.Errorf("%q is not a positive number", arg)
		}
		result[i] = value
	}
	return result, nil
}

// workerCommand re-executes this program in worker mode.
func workerCommand(exe string, opts options) stress.CommandFunc {
	return func(ctx context.Context, id int, name string, n int) *exec.Cmd {
		cmd := exec.CommandContext(ctx, exe,
			"-worker="+name,
			"-id="+strconv.Itoa(id),
			"-log-level="+opts.logLevel,
			strconv.Itoa(n))
		cmd.Stdout = os.Stdout
		return cmd
	}
}

func runWorker(ctx context.Context, opts options, args []int) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "worker mode expects exactly one argument")
		return exitUsage
	}
	if err := stress.RunWorker(ctx, opts.id, opts.worker, args[0], nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	return exitOK
}

func runParent(ctx context.Context, log *slog.Logger, opts options, args []int) int {
	if len(args) != 2 {
		return exitUsage
	}
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	if removed, err := shm.Sweep(opts.prefix); err != nil {
		log.Warn("failed to remove stale segments", "error", err)
	} else if len(removed) > 0 {
		log.Info("stale segments removed", "names", removed)
	}
	var metrics *stress.Metrics
	if opts.metrics {
		metrics = stress.NewMetrics()
	}
	report, err := stress.Run(ctx, stress.Config{
		Processes:  args[0],
		Iterations: args[1],
		DataSize:   opts.size,
		Prefix:     opts.prefix,
		InProcess:  opts.parent,
		Command:    workerCommand(exe, opts),
		Metrics:    metrics,
		Logger:     log,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	if err = metrics.WriteText(os.Stdout); err != nil {
		log.Warn("failed to print metrics", "error", err)
	}
	if report.Failed > 0 {
		for _, err := range report.Errors {
			fmt.Fprintln(os.Stderr, err)
		}
		return exitFailure
	}
	return exitOK
}

func run(args []string) int {
	fs := flag.NewFlagSet("shmstress", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	opts, rest, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	numbers, err := positiveArgs(rest)
	if err != nil || opts.size <= 0 {
		fs.Usage()
		return exitUsage
	}
	log, err := newLogger(os.Stderr, opts.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	shm.SetLogger(log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		// the segment is removed by deferred Close calls, unless something went really wrong.
		if err := shm.UnlinkOwned(); err != nil {
			log.Warn("failed to remove segments", "error", err)
		}
	}()
	if len(opts.worker) > 0 {
		return runWorker(ctx, opts, numbers)
	}
	code := runParent(ctx, log, opts, numbers)
	if code == exitUsage {
		fs.Usage()
	}
	return code
}

func main() {
	os.Exit(run(os.Args[1:]))
}
