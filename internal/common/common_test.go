// Copyright 2016 Aleksandr Demakin. All rights reserved.

package common

import (
	"os"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestSyscallErrHasCode(t *testing.T) {
	a := assert.New(t)
	err := os.NewSyscallError("FUTEX", syscall.EAGAIN)
	a.True(SyscallErrHasCode(err, syscall.EAGAIN))
	a.False(SyscallErrHasCode(err, syscall.EINTR))
	a.True(SyscallErrHasCode(errors.Wrap(err, "wait failed"), syscall.EAGAIN))
	a.True(SyscallErrHasCode(&os.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, syscall.ENOENT))
	a.False(SyscallErrHasCode(errors.New("plain"), syscall.ENOENT))
	a.False(SyscallErrHasCode(nil, syscall.ENOENT))
}

func TestTimeoutErrors(t *testing.T) {
	a := assert.New(t)
	err := NewTimeoutError("lock")
	a.True(IsTimeoutErr(err))
	a.False(IsInterruptedSyscallErr(err))
	a.True(IsInterruptedSyscallErr(os.NewSyscallError("FUTEX", syscall.EINTR)))
}
