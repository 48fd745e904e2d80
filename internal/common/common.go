// Copyright 2016 Aleksandr Demakin. All rights reserved.

package common

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// SyscallErrHasCode returns true, if the given error, or any error it wraps,
// is a syscall error with the given code.
func SyscallErrHasCode(err error, code syscall.Errno) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == code
	}
	return false
}

// IsTimeoutErr returns true, if the given error is a timeout syscall error.
func IsTimeoutErr(err error) bool {
	return SyscallErrHasCode(err, syscall.ETIMEDOUT)
}

// IsInterruptedSyscallErr returns true, if the syscall was interrupted by a signal.
func IsInterruptedSyscallErr(err error) bool {
	return SyscallErrHasCode(err, syscall.EINTR)
}

// NewTimeoutError returns new syscall error with ETIMEDOUT code.
func NewTimeoutError(op string) error {
	return os.NewSyscallError(op, syscall.ETIMEDOUT)
}
