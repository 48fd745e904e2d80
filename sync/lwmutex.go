// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"sync/atomic"
	"time"

	"github.com/nxgtw/go-shm/internal/common"
)

const (
	cInplaceSpinCount              = 100
	cInplaceMutexUnlocked          = uint32(0)
	cInplaceMutexLockedNoWaiters   = uint32(1)
	cInplaceMutexLockedHaveWaiters = uint32(2)
)

// waitWaker is an object, which implements wake/wait semantics.
type waitWaker interface {
	wake(count uint32) (int, error)
	// wait must return nil, if the value has changed or the wait was interrupted,
	// and a timeout error, if the timeout has expired.
	wait(value uint32, timeout time.Duration) error
}

// lwMutex is a lightweight mutex implementation operating on a uint32 memory cell.
// it tries to minimize amount of syscalls needed to do locking.
// actual sleeping must be implemented by a waitWaker object.
// state transitions follow the 'Futexes Are Tricky' paper by Ulrich Drepper:
//	0 - unlocked, 1 - locked, no waiters, 2 - locked, maybe with waiters.
type lwMutex struct {
	ptr *uint32
	ww  waitWaker
}

func newLightweightMutex(ptr *uint32, ww waitWaker) *lwMutex {
	return &lwMutex{ptr: ptr, ww: ww}
}

// init writes initial value into mutex's memory location.
func (lwm *lwMutex) init() {
	atomic.StoreUint32(lwm.ptr, cInplaceMutexUnlocked)
}

func (lwm *lwMutex) lock() {
	if err := lwm.doLock(-1); err != nil {
		panic(err)
	}
}

func (lwm *lwMutex) tryLock() bool {
	return atomic.CompareAndSwapUint32(lwm.ptr, cInplaceMutexUnlocked, cInplaceMutexLockedNoWaiters)
}

func (lwm *lwMutex) lockTimeout(timeout time.Duration) bool {
	err := lwm.doLock(timeout)
	if err == nil {
		return true
	}
	if common.IsTimeoutErr(err) {
		return false
	}
	panic(err)
}

// doLock locks the mutex. negative timeout means 'wait forever'.
func (lwm *lwMutex) doLock(timeout time.Duration) error {
	for i := 0; i < cInplaceSpinCount; i++ {
		if lwm.tryLock() {
			return nil
		}
	}
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	old := atomic.LoadUint32(lwm.ptr)
	if old != cInplaceMutexLockedHaveWaiters {
		old = atomic.SwapUint32(lwm.ptr, cInplaceMutexLockedHaveWaiters)
	}
	for old != cInplaceMutexUnlocked {
		left := time.Duration(-1)
		if timeout >= 0 {
			if left = time.Until(deadline); left <= 0 {
				return common.NewTimeoutError("LOCK")
			}
		}
		if err := lwm.ww.wait(cInplaceMutexLockedHaveWaiters, left); err != nil {
			return err
		}
		old = atomic.SwapUint32(lwm.ptr, cInplaceMutexLockedHaveWaiters)
	}
	return nil
}

func (lwm *lwMutex) unlock() {
	switch atomic.SwapUint32(lwm.ptr, cInplaceMutexUnlocked) {
	case cInplaceMutexUnlocked:
		panic("unlock of unlocked mutex")
	case cInplaceMutexLockedNoWaiters:
		return
	}
	// give a spinning locker a chance to take the mutex without a syscall.
	for i := 0; i < cInplaceSpinCount; i++ {
		if atomic.LoadUint32(lwm.ptr) != cInplaceMutexUnlocked {
			if atomic.CompareAndSwapUint32(lwm.ptr, cInplaceMutexLockedNoWaiters, cInplaceMutexLockedHaveWaiters) {
				return
			}
		}
	}
	if _, err := lwm.ww.wake(1); err != nil {
		panic(err)
	}
}
