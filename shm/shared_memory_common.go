// Copyright 2015 Aleksandr Demakin. All rights reserved.

package shm

import (
	"strings"

	ipc "github.com/nxgtw/go-shm"

	"github.com/pkg/errors"
)

// MaxNameLen is the maximum length of an object name including the implicit terminator.
// It matches NAME_MAX of the platform.
const MaxNameLen = 255

// errors, which are returned (wrapped) by the segment constructors.
// Use errors.Is or errors.Cause to check for them.
var (
	// ErrInvalidName is returned for empty, malformed or too long names.
	ErrInvalidName = errors.New("invalid shared memory name")
	// ErrAlreadyExists is returned, if Create collides with an existing object.
	ErrAlreadyExists = errors.New("shared memory object already exists")
	// ErrNotFound is returned, if Open targets a nonexistent object.
	ErrNotFound = errors.New("shared memory object not found")
	// ErrInvalidSize is returned for non-positive sizes, or when an existing object is empty.
	ErrInvalidSize = errors.New("invalid shared memory size")
	// ErrMappingFailed is returned, if the object was allocated, but could not be mapped.
	ErrMappingFailed = errors.New("shared memory mapping failed")
	// ErrInvalidAccess is returned for unknown access types.
	ErrInvalidAccess = errors.New("invalid access type")
	// ErrReadOnly is returned by writers over read-only segments.
	ErrReadOnly = errors.New("shared memory segment is read-only")
	// ErrUnsupported is returned on platforms without shared memory support.
	ErrUnsupported = errors.New("shared memory is not supported on this platform")
)

// this is to ensure, that the segment satisfies the same minimal interfaces,
// as other ipc objects.
var (
	_ ipc.Destroyer       = (*Segment)(nil)
	_ iSharedMemoryRegion = (*Segment)(nil)
)

type iSharedMemoryRegion interface {
	Name() string
	Data() []byte
	Size() int
	Flush(async bool) error
	Close() error
}

// ValidateName checks, that the name can be used for a shared memory object:
// it must start with '/', must not contain other slashes, and its length
// together with the terminating zero must not exceed MaxNameLen.
func ValidateName(name string) error {
	switch {
	case len(name) < 2:
		return errors.Wrapf(ErrInvalidName, "name %q is too short", name)
	case name[0] != '/':
		return errors.Wrapf(ErrInvalidName, "name %q must start with '/'", name)
	case strings.ContainsAny(name[1:], "/\x00"):
		return errors.Wrapf(ErrInvalidName, "name %q contains forbidden symbols", name)
	case name == "/." || name == "/..":
		return errors.Wrapf(ErrInvalidName, "name %q is reserved", name)
	case len(name)+1 > MaxNameLen:
		return errors.Wrapf(ErrInvalidName, "name of length %d exceeds the limit of %d", len(name), MaxNameLen-1)
	}
	return nil
}
