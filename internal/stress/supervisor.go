// Copyright 2016 Aleksandr Demakin. All rights reserved.

package stress

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/nxgtw/go-shm/shm"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

// DefaultPrefix is the name prefix of stress segments.
const DefaultPrefix = "/shmstress"

// CommandFunc builds a command, which runs a worker process over the segment with the given name.
// The worker must perform n iterations and exit with a non-zero code on failure.
type CommandFunc func(ctx context.Context, id int, name string, n int) *exec.Cmd

// Config describes a stress run.
type Config struct {
	// Processes is the number of worker processes.
	Processes int
	// Iterations is the number of iterations each worker performs.
	Iterations int
	// DataSize is the size of the guarded buffer. DefaultDataSize is used if zero.
	DataSize int
	// Prefix is the segment name prefix. DefaultPrefix is used if empty.
	Prefix string
	// InProcess makes the supervisor run a worker itself, in addition to the processes.
	InProcess bool
	// Command builds worker processes. Required if Processes > 0.
	Command CommandFunc
	// Metrics receives statistics of the in-process worker and of the worker results. May be nil.
	Metrics *Metrics
	// Logger may be nil.
	Logger *slog.Logger
}

// Report is the result of a stress run.
type Report struct {
	// Segment is the name of the segment used for the run.
	Segment string
	// Workers is the total number of workers, including the in-process one.
	Workers int
	// Failed is the number of failed workers.
	Failed int
	// Errors holds errors of the failed workers.
	Errors []error
}

// Err returns the first worker error, or nil, if all the workers have succeeded.
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

func (cfg *Config) validate() error {
	if cfg.Processes < 0 {
		return errors.Errorf("invalid number of processes %d", cfg.Processes)
	}
	if cfg.Iterations < 0 {
		return errors.Errorf("invalid number of iterations %d", cfg.Iterations)
	}
	if cfg.DataSize < 0 {
		return errors.Errorf("invalid data size %d", cfg.DataSize)
	}
	if cfg.DataSize == 0 {
		cfg.DataSize = DefaultDataSize
	}
	if len(cfg.Prefix) == 0 {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Processes > 0 && cfg.Command == nil {
		return errors.New("worker command is not set")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Run creates a stress segment, initializes the mutex in it, and runs the workers.
// The returned error describes failures of the setup, failures of the workers are in the report.
func Run(ctx context.Context, cfg Config) (Report, error) {
	var report Report
	if err := cfg.validate(); err != nil {
		return report, err
	}
	seg, err := shm.CreateUnique(cfg.Prefix, SegmentSize(cfg.DataSize))
	if err != nil {
		return report, errors.Wrap(err, "failed to create stress segment")
	}
	defer seg.Close()
	if _, err = initShared(seg); err != nil {
		return report, err
	}
	report.Segment = seg.Name()
	report.Workers = cfg.Processes
	if cfg.InProcess {
		report.Workers++
	}
	if report.Workers == 0 {
		return report, nil
	}
	log := cfg.Logger.With("segment", report.Segment)
	pool, err := ants.NewPool(report.Workers, ants.WithPanicHandler(func(p any) {
		log.Error("worker panicked", "panic", p)
	}))
	if err != nil {
		return report, errors.Wrap(err, "failed to create worker pool")
	}
	defer pool.Release()
	var (
		wg       sync.WaitGroup
		resultMu sync.Mutex
	)
	done := func(id int, err error) {
		cfg.Metrics.workerDone(err)
		resultMu.Lock()
		defer resultMu.Unlock()
		if err != nil {
			log.Warn("worker failed", "id", id, "error", err)
			report.Failed++
			report.Errors = append(report.Errors, err)
		} else {
			log.Debug("worker finished", "id", id)
		}
	}
	submit := func(id int, task func() error) error {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			done(id, task())
		})
		if err != nil {
			wg.Done()
		}
		return err
	}
	for id := 1; id <= cfg.Processes; id++ {
		cmd := cfg.Command(ctx, id, report.Segment, cfg.Iterations)
		if err = submit(id, func() error { return runChild(id, cmd) }); err != nil {
			break
		}
	}
	if err == nil && cfg.InProcess {
		err = submit(0, func() error {
			return RunWorker(ctx, 0, report.Segment, cfg.Iterations, cfg.Metrics)
		})
	}
	wg.Wait()
	if err != nil {
		return report, errors.Wrap(err, "failed to start a worker")
	}
	log.Info("stress run finished", "workers", report.Workers, "failed", report.Failed)
	return report, nil
}

func runChild(id int, cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	if cmd.Stderr == nil {
		cmd.Stderr = &stderr
	}
	if err := cmd.Run(); err != nil {
		if output := strings.TrimSpace(stderr.String()); len(output) > 0 {
			return errors.Errorf("worker %d: %v: %s", id, err, output)
		}
		return errors.Wrapf(err, "worker %d", id)
	}
	return nil
}
