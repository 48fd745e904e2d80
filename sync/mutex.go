// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"sync/atomic"
	"time"

	"github.com/nxgtw/go-shm/internal/allocator"

	"github.com/pkg/errors"
)

const (
	// ProcessMutexSize is the number of bytes a ProcessMutex occupies in shared memory.
	ProcessMutexSize = 8

	stateOffset = 0
	attrOffset  = 4
	// cSharedAttr marks the memory as an initialized process-shared mutex.
	cSharedAttr = uint32(0x4d534850)
)

var (
	// ErrAlreadyInitialized is returned by Init, if the memory already holds a mutex.
	ErrAlreadyInitialized = errors.New("mutex is already initialized")
	// ErrNotInitialized is returned by Attach, if the memory does not hold a mutex.
	ErrNotInitialized = errors.New("mutex is not initialized")
)

// this is to ensure, that the mutex satisfies the locker interfaces.
var (
	_ TimedIPCLocker = (*ProcessMutex)(nil)
)

// ProcessMutex is a mutex, which lives in memory shared by several processes.
// It is a futex-based mutex on linux and a spin mutex on other platforms.
// The mutex does not own its memory: the memory must stay mapped
// while any process uses the mutex.
type ProcessMutex struct {
	lwm  *lwMutex
	attr *uint32
}

// Init initializes a new mutex in mem. It must be called exactly once,
// by one process, before the memory is shared with others.
// mem must be at least ProcessMutexSize bytes long, 4-byte aligned and zeroed.
func Init(mem []byte) (*ProcessMutex, error) {
	m, err := newProcessMutex(mem)
	if err != nil {
		return nil, err
	}
	switch attr := atomic.LoadUint32(m.attr); attr {
	case 0:
	case cSharedAttr:
		return nil, ErrAlreadyInitialized
	default:
		return nil, errors.Errorf("memory is not zeroed: %#x", attr)
	}
	m.lwm.init()
	if !atomic.CompareAndSwapUint32(m.attr, 0, cSharedAttr) {
		return nil, ErrAlreadyInitialized
	}
	return m, nil
}

// Attach returns a mutex, which was initialized in mem by another process.
func Attach(mem []byte) (*ProcessMutex, error) {
	m, err := newProcessMutex(mem)
	if err != nil {
		return nil, err
	}
	if atomic.LoadUint32(m.attr) != cSharedAttr {
		return nil, ErrNotInitialized
	}
	return m, nil
}

func newProcessMutex(mem []byte) (*ProcessMutex, error) {
	if len(mem) < ProcessMutexSize {
		return nil, errors.Errorf("mutex needs %d bytes, got %d", ProcessMutexSize, len(mem))
	}
	state, err := allocator.Uint32At(mem, stateOffset)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mutex memory")
	}
	attr, err := allocator.Uint32At(mem, attrOffset)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mutex memory")
	}
	return &ProcessMutex{
		lwm:  newLightweightMutex(state, newWaitWaker(state)),
		attr: attr,
	}, nil
}

// Lock locks the mutex. It panics on an error.
func (m *ProcessMutex) Lock() {
	m.lwm.lock()
}

// TryLock makes one attempt to lock the mutex. It return true on succeess and false otherwise.
func (m *ProcessMutex) TryLock() bool {
	return m.lwm.tryLock()
}

// LockTimeout tries to lock the mutex, waiting for not more, than timeout.
func (m *ProcessMutex) LockTimeout(timeout time.Duration) bool {
	return m.lwm.lockTimeout(timeout)
}

// Unlock releases the mutex. It panics on an error, or if the mutex is not locked.
func (m *ProcessMutex) Unlock() {
	m.lwm.unlock()
}
