// Copyright 2016 Aleksandr Demakin. All rights reserved.

package stress

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	ipc "github.com/nxgtw/go-shm"
	"github.com/nxgtw/go-shm/shm"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// CorruptionError is returned by a worker, which has found bytes,
// that differ from the first byte of the buffer.
type CorruptionError struct {
	Worker    int
	Iteration int
	Offset    int
	Expected  byte
	Actual    byte
	// Digest is the xxhash of the buffer at the moment of the check.
	Digest uint64
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("BOOM! worker %d, iteration %d: byte %d is %#02x, expected %#02x (buffer digest %016x)",
		e.Worker, e.Iteration, e.Offset, e.Actual, e.Expected, e.Digest)
}

// Worker runs the lock-verify-write loop over a stress segment.
type Worker struct {
	id      int
	shared  *shared
	metrics *Metrics
}

// NewWorker attaches to the mutex placed in seg by the supervisor.
// The segment must stay open while the worker runs.
func NewWorker(id int, seg *shm.Segment, metrics *Metrics) (*Worker, error) {
	s, err := attachShared(seg)
	if err != nil {
		return nil, err
	}
	return &Worker{id: id, shared: s, metrics: metrics}, nil
}

// Run performs n iterations. Each iteration takes the lock, checks, that all
// the bytes equal the first one, and fills the buffer with a new random byte.
// It stops on the first corruption, returning *CorruptionError, or when ctx is done.
func (w *Worker) Run(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.iteration(i); err != nil {
			w.metrics.corruptionFound()
			return err
		}
	}
	return nil
}

func (w *Worker) iteration(i int) error {
	start := time.Now()
	w.shared.mutex.Lock()
	defer w.shared.mutex.Unlock()
	wait := time.Since(start)
	data := w.shared.data
	pattern := data[0]
	for offset, value := range data {
		if value != pattern {
			return &CorruptionError{
				Worker:    w.id,
				Iteration: i,
				Offset:    offset,
				Expected:  pattern,
				Actual:    value,
				Digest:    xxhash.Sum64(data),
			}
		}
	}
	pattern = byte(rand.IntN(0xFF))
	for offset := range data {
		data[offset] = pattern
	}
	w.metrics.iterationDone(wait)
	return nil
}

// RunWorker opens the segment with the given name and runs a worker over it.
func RunWorker(ctx context.Context, id int, name string, n int, metrics *Metrics) error {
	seg, err := shm.Open(name, ipc.ReadWrite)
	if err != nil {
		return errors.Wrap(err, "failed to open stress segment")
	}
	defer seg.Close()
	w, err := NewWorker(id, seg, metrics)
	if err != nil {
		return err
	}
	return w.Run(ctx, n)
}
