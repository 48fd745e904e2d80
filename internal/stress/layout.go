// Copyright 2016 Aleksandr Demakin. All rights reserved.

package stress

import (
	"github.com/nxgtw/go-shm/shm"
	ipc_sync "github.com/nxgtw/go-shm/sync"

	"github.com/pkg/errors"
)

// DefaultDataSize is the size of the guarded buffer.
const DefaultDataSize = 64

// DataOffset is where the guarded buffer starts. The mutex occupies the beginning of the segment.
const DataOffset = ipc_sync.ProcessMutexSize

// SegmentSize returns the size of a segment holding the mutex and dataSize bytes of data.
func SegmentSize(dataSize int) int {
	return DataOffset + dataSize
}

// shared is the view of a stress segment: {mutex, data[dataSize]}.
type shared struct {
	mutex *ipc_sync.ProcessMutex
	data  []byte
}

// initShared initializes the mutex in a freshly created segment.
// The data is zeroed, so all the bytes are equal from the start.
func initShared(seg *shm.Segment) (*shared, error) {
	if seg.Size() <= DataOffset {
		return nil, errors.Errorf("segment of size %d can't hold the data", seg.Size())
	}
	mutex, err := ipc_sync.Init(seg.Data())
	if err != nil {
		return nil, errors.Wrap(err, "failed to init mutex")
	}
	return &shared{mutex: mutex, data: seg.Data()[DataOffset:]}, nil
}

// attachShared binds to a segment initialized by another process.
func attachShared(seg *shm.Segment) (*shared, error) {
	if seg.Size() <= DataOffset {
		return nil, errors.Errorf("segment of size %d can't hold the data", seg.Size())
	}
	mutex, err := ipc_sync.Attach(seg.Data())
	if err != nil {
		return nil, errors.Wrap(err, "failed to attach to mutex")
	}
	return &shared{mutex: mutex, data: seg.Data()[DataOffset:]}, nil
}
