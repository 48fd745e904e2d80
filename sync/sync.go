// Copyright 2015 Aleksandr Demakin. All rights reserved.

package sync

import (
	"sync"
	"time"
)

// IPCLocker is a minimal interface, which must be satisfied by any
// inter-process synchronization primitive.
type IPCLocker interface {
	sync.Locker
	// TryLock makes one attempt to lock the locker.
	TryLock() bool
}

// TimedIPCLocker is a locker, whose lock operation can be limited with duration.
type TimedIPCLocker interface {
	IPCLocker
	// LockTimeout tries to lock the locker, waiting for not more, than timeout
	LockTimeout(timeout time.Duration) bool
}
