// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build !linux

package sync

import (
	"runtime"
	"time"
)

// spinWW is a waitWaker, which yields the processor instead of sleeping.
type spinWW struct{}

func (sw spinWW) wake(uint32) (int, error) {
	return 1, nil
}

func (sw spinWW) wait(uint32, time.Duration) error {
	runtime.Gosched()
	return nil
}

func newWaitWaker(*uint32) waitWaker {
	return spinWW{}
}
