// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package ipc provides named shared memory segments, which can be mapped
// by unrelated processes, and a mutex, which can be placed into such a segment.
// The functionality is split into the following packages:
//	shm - named segments with exclusive create, attach-only open and unique names.
//	sync - a process-shared mutex living inside mapped memory.
// This package holds the definitions shared by all of them.
package ipc
