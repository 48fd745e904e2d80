// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shm

import (
	"sort"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
)

// owned holds names of the objects created by this process, which were not removed yet.
// values are tokens of the owning segments, so that a segment, whose name
// was unlinked and then reused by another object, can't remove the new one.
var owned = cmap.New[uint64]()

var ownerTokens uint64

func registerOwned(name string) uint64 {
	token := atomic.AddUint64(&ownerTokens, 1)
	owned.Set(name, token)
	return token
}

// unregisterOwned removes the name from the registry, if it is still registered with the token.
// It returns false, if the name was already unlinked by UnlinkOwned.
func unregisterOwned(name string, token uint64) bool {
	return owned.RemoveCb(name, func(_ string, v uint64, exists bool) bool {
		return exists && v == token
	})
}

// Owned returns sorted names of the objects, which were created by this process
// and are still owned by live segments.
func Owned() []string {
	names := owned.Keys()
	sort.Strings(names)
	return names
}

// UnlinkOwned removes names of all the objects owned by this process.
// It is intended to be called on abnormal termination, for example from a signal handler,
// when deferred Close calls won't run. The mappings themselves stay valid,
// but the segments don't own the objects anymore.
// It returns the first error encountered, but tries to unlink all the objects.
func UnlinkOwned() error {
	var result error
	for _, name := range owned.Keys() {
		token, ok := owned.Pop(name)
		if !ok {
			continue
		}
		if err := unlinkObject(name); err != nil {
			owned.SetIfAbsent(name, token)
			if result == nil {
				result = errors.Wrapf(err, "failed to unlink %q", name)
			}
			continue
		}
		logger().Debug("owned shared memory unlinked", "name", name)
	}
	return result
}
