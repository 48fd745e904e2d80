// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build !linux

package shm

import (
	ipc "github.com/nxgtw/go-shm"
)

func createObject(name string, size int) ([]byte, error) {
	return nil, ErrUnsupported
}

func openObject(name string, access ipc.AccessType) ([]byte, error) {
	return nil, ErrUnsupported
}

func unmapData(data []byte) error {
	return ErrUnsupported
}

func flushData(data []byte, async bool) error {
	return ErrUnsupported
}

func unlinkObject(name string) error {
	return ErrUnsupported
}

func listObjects(prefix string) ([]string, error) {
	return nil, ErrUnsupported
}
