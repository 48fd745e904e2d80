// Copyright 2015 Aleksandr Demakin. All rights reserved.

package ipc

import "fmt"

// AccessType defines how a segment is mapped into the address space.
type AccessType int

// access types for shared memory segments.
const (
	// ReadWrite is the default access type, used for created segments.
	ReadWrite AccessType = iota
	// ReadOnly maps a segment for reading only. Writing into it will crash the process.
	ReadOnly
)

// String returns a human readable representation of the access type.
func (a AccessType) String() string {
	switch a {
	case ReadWrite:
		return "read-write"
	case ReadOnly:
		return "read-only"
	default:
		return fmt.Sprintf("AccessType(%d)", int(a))
	}
}

// Valid returns true, if a is one of the known access types.
func (a AccessType) Valid() bool {
	return a == ReadWrite || a == ReadOnly
}
