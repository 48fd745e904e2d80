// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shm

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	// uniqueAttempts is how many names CreateUnique tries before giving up.
	uniqueAttempts = 16
	uniqueSep      = "."
)

var uniqueCounter uint64

// CreateUnique creates a new segment, whose name starts with prefix
// and ends with a process-unique suffix: '.<pid>.<counter>'.
// If a generated name collides with an existing object, another name is tried.
// Any other error is returned immediately.
// The prefix must satisfy the same rules as a name passed to Create.
func CreateUnique(prefix string, size int) (*Segment, error) {
	if err := ValidateName(prefix); err != nil {
		return &Segment{}, err
	}
	var result *Segment
	op := func() error {
		seg, err := Create(uniqueName(prefix), size)
		if err == nil {
			result = seg
			return nil
		}
		if errors.Is(err, ErrAlreadyExists) {
			logger().Debug("unique name collision", "prefix", prefix, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uniqueAttempts-1)
	if err := backoff.Retry(op, policy); err != nil {
		return &Segment{}, errors.Wrapf(err, "failed to create a segment with prefix %q", prefix)
	}
	return result, nil
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s%s%d%s%d", prefix, uniqueSep, os.Getpid(), uniqueSep, atomic.AddUint64(&uniqueCounter, 1))
}

// parseUniqueName returns the pid embedded into a name generated by CreateUnique.
func parseUniqueName(prefix, name string) (int, bool) {
	if !strings.HasPrefix(name, prefix+uniqueSep) {
		return 0, false
	}
	parts := strings.Split(name[len(prefix)+len(uniqueSep):], uniqueSep)
	if len(parts) != 2 {
		return 0, false
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil || pid <= 0 {
		return 0, false
	}
	if _, err := strconv.ParseUint(parts[1], 10, 64); err != nil {
		return 0, false
	}
	return pid, true
}

// Sweep removes objects created by CreateUnique with the given prefix,
// whose creator processes do not exist anymore. Such objects are left
// by processes, which were killed before they could close their segments.
// It returns the names of the removed objects.
func Sweep(prefix string) ([]string, error) {
	return sweep(prefix, func(pid int) (bool, error) {
		return process.PidExists(int32(pid))
	})
}

func sweep(prefix string, alive func(pid int) (bool, error)) ([]string, error) {
	if err := ValidateName(prefix); err != nil {
		return nil, err
	}
	names, err := listObjects(prefix)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list objects")
	}
	var removed []string
	for _, name := range names {
		pid, ok := parseUniqueName(prefix, name)
		if !ok || pid == os.Getpid() {
			continue
		}
		exists, err := alive(pid)
		if err != nil {
			return removed, errors.Wrapf(err, "failed to check process %d", pid)
		}
		if exists {
			continue
		}
		if err := Unlink(name); err != nil {
			return removed, err
		}
		logger().Debug("stale shared memory removed", "name", name, "pid", pid)
		removed = append(removed, name)
	}
	return removed, nil
}
