// Copyright 2015 Aleksandr Demakin. All rights reserved.

package allocator

import (
	"fmt"
	"runtime"
	"unsafe"
)

// ByteSliceData returns a pointer to the data of the given byte slice.
func ByteSliceData(slice []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(slice))
}

// ByteSliceFromUnsafePointer returns a slice of bytes with the given length.
// Memory pointed by the unsafe.Pointer is used for the slice.
func ByteSliceFromUnsafePointer(memory unsafe.Pointer, length int) []byte {
	return unsafe.Slice((*byte)(memory), length)
}

// AdvancePointer adds shift value to 'p' pointer.
func AdvancePointer(p unsafe.Pointer, shift uintptr) unsafe.Pointer {
	return unsafe.Add(p, shift)
}

// IsAligned returns true, if p is a multiple of align.
func IsAligned(p unsafe.Pointer, align uintptr) bool {
	return uintptr(p)%align == 0
}

// Uint32At returns a pointer to an uint32 value placed at the given offset of memory.
// It returns an error if the value does not fit into memory or is not properly aligned,
// as atomic operations and futexes require natural alignment.
func Uint32At(memory []byte, offset int) (*uint32, error) {
	const size = int(unsafe.Sizeof(uint32(0)))
	if offset < 0 || offset+size > len(memory) {
		return nil, fmt.Errorf("offset %d is out of range for a %d byte buffer", offset, len(memory))
	}
	p := AdvancePointer(ByteSliceData(memory), uintptr(offset))
	if !IsAligned(p, unsafe.Alignof(uint32(0))) {
		return nil, fmt.Errorf("address %#x is not aligned", uintptr(p))
	}
	return (*uint32)(p), nil
}

// Use ensures, that the object pointed by p is kept alive until this point.
func Use(p unsafe.Pointer) {
	runtime.KeepAlive(p)
}
