// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"os"
	"time"
	"unsafe"

	"github.com/nxgtw/go-shm/internal/allocator"
	"github.com/nxgtw/go-shm/internal/common"

	"golang.org/x/sys/unix"
)

const (
	cFUTEX_WAIT = 0
	cFUTEX_WAKE = 1
)

// futex is a waitWaker backed by a linux futex.
// Operations are not private, so that processes, which map
// the same memory at different addresses, can wake each other.
type futex struct {
	ptr *uint32
}

func (f *futex) wait(value uint32, timeout time.Duration) error {
	_, err := sysFutex(unsafe.Pointer(f.ptr), cFUTEX_WAIT, value, unsafe.Pointer(common.TimeoutToTimeSpec(timeout)), nil, 0)
	if err == nil || common.SyscallErrHasCode(err, unix.EAGAIN) || common.IsInterruptedSyscallErr(err) {
		return nil
	}
	return err
}

func (f *futex) wake(count uint32) (int, error) {
	woken, err := sysFutex(unsafe.Pointer(f.ptr), cFUTEX_WAKE, count, nil, nil, 0)
	return int(woken), err
}

func newWaitWaker(ptr *uint32) waitWaker {
	return &futex{ptr: ptr}
}

func sysFutex(addr unsafe.Pointer, op int32, val uint32, ts, addr2 unsafe.Pointer, val3 uint32) (int32, error) {
	r1, _, err := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(addr),
		uintptr(op),
		uintptr(val),
		uintptr(ts),
		uintptr(addr2),
		uintptr(val3))
	allocator.Use(addr)
	allocator.Use(ts)
	if err != 0 {
		return 0, os.NewSyscallError("FUTEX", err)
	}
	return int32(r1), nil
}
