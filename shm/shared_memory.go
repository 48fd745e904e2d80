// Copyright 2015 Aleksandr Demakin. All rights reserved.

package shm

import (
	"runtime"

	ipc "github.com/nxgtw/go-shm"

	"github.com/pkg/errors"
)

// noCopy makes 'go vet' report copies of the structs, which embed it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Segment is a named shared memory object mapped into the process' address space.
// A segment owns its mapping: it is unmapped when the segment is closed,
// and, if the segment has created the object, the object's name is removed as well.
// Ownership can be transferred with Move and Assign, but never duplicated,
// so segments must not be copied by value.
//
// The zero value and a nil *Segment are invalid segments: they have no data,
// zero size and an empty name. All observers are safe to call on them.
//
// Warning. Segments returned by the constructors have a finalizer set,
// so an unreachable segment will be closed during the gc.
// Thus, you should be careful using the data returned by Data(),
// when the segment itself is not used anymore. Use runtime.KeepAlive,
// or segment readers/writers, which hold a reference to the segment.
type Segment struct {
	noCopy noCopy
	name   string
	data   []byte
	access ipc.AccessType
	owner  bool
	token  uint64
}

// Create creates a new named object of the given size and maps it for reading and writing.
// It never attaches to an existing object: if the name is already in use, ErrAlreadyExists is returned.
// The returned segment owns the object and removes its name on Close.
//	name - object name. must start with '/' and must not contain other slashes.
//	size - object size in bytes. must be positive.
// The returned segment is never nil. On failure it is invalid, and the error
// describes the reason. No resources are held by an invalid segment.
func Create(name string, size int) (*Segment, error) {
	if err := ValidateName(name); err != nil {
		return &Segment{}, err
	}
	if size <= 0 {
		return &Segment{}, errors.Wrapf(ErrInvalidSize, "size %d", size)
	}
	data, err := createObject(name, size)
	if err != nil {
		return &Segment{}, errors.Wrapf(err, "failed to create %q", name)
	}
	logger().Debug("shared memory created", "name", name, "size", size)
	return newSegment(name, data, ipc.ReadWrite, true), nil
}

// Open attaches to an object created elsewhere and maps it with the requested access.
// The size of the segment is the size of the object. Open never creates objects:
// ErrNotFound is returned, if there is no object with the given name.
// The returned segment does not own the object and never removes its name.
// The returned segment is never nil. On failure it is invalid.
func Open(name string, access ipc.AccessType) (*Segment, error) {
	if err := ValidateName(name); err != nil {
		return &Segment{}, err
	}
	if !access.Valid() {
		return &Segment{}, errors.Wrapf(ErrInvalidAccess, "%v", access)
	}
	data, err := openObject(name, access)
	if err != nil {
		return &Segment{}, errors.Wrapf(err, "failed to open %q", name)
	}
	logger().Debug("shared memory opened", "name", name, "size", len(data), "access", access)
	return newSegment(name, data, access, false), nil
}

// Unlink removes the object with the given name, so that it can't be opened anymore.
// Existing mappings stay valid until they are closed.
// It is not an error to unlink a nonexistent object.
func Unlink(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := unlinkObject(name); err != nil {
		return errors.Wrapf(err, "failed to unlink %q", name)
	}
	logger().Debug("shared memory unlinked", "name", name)
	return nil
}

func newSegment(name string, data []byte, access ipc.AccessType, owner bool) *Segment {
	result := &Segment{name: name, data: data, access: access, owner: owner}
	if owner {
		result.token = registerOwned(name)
	}
	runtime.SetFinalizer(result, finalizeSegment)
	return result
}

func finalizeSegment(s *Segment) {
	s.Close()
}

// IsValid returns true, if the segment holds a mapping.
func (s *Segment) IsValid() bool {
	return s != nil && s.data != nil && len(s.data) > 0
}

// Data returns mapped bytes, or nil for an invalid segment.
// The slice must not be used after the segment was closed, moved, or collected.
func (s *Segment) Data() []byte {
	if !s.IsValid() {
		return nil
	}
	return s.data
}

// Size returns mapping size in bytes, or 0 for an invalid segment.
func (s *Segment) Size() int {
	if !s.IsValid() {
		return 0
	}
	return len(s.data)
}

// Name returns the name of the object as it was given to the constructor,
// or an empty string for an invalid segment.
func (s *Segment) Name() string {
	if !s.IsValid() {
		return ""
	}
	return s.name
}

// Access returns the access type the segment was mapped with.
func (s *Segment) Access() ipc.AccessType {
	if !s.IsValid() {
		return ipc.ReadWrite
	}
	return s.access
}

// IsOwner returns true, if the segment removes object's name on Close.
// A segment stops being the owner, when its name is removed by UnlinkOwned.
func (s *Segment) IsOwner() bool {
	if !s.IsValid() || !s.owner {
		return false
	}
	token, ok := owned.Get(s.name)
	return ok && token == s.token
}

// Move transfers the mapping into a new segment and returns it.
// After the call s is invalid. Moving an invalid segment returns an invalid segment.
func (s *Segment) Move() *Segment {
	result := &Segment{}
	if !s.IsValid() {
		return result
	}
	result.take(s)
	runtime.SetFinalizer(result, finalizeSegment)
	return result
}

// Assign tears down the mapping currently held by s, and then transfers src's mapping into s.
// After the call src is invalid. Assigning a segment to itself does nothing.
// The returned error is the error of the teardown, the transfer itself can't fail.
func (s *Segment) Assign(src *Segment) error {
	if s == src {
		return nil
	}
	err := s.Close()
	if src.IsValid() {
		s.take(src)
	}
	return err
}

func (s *Segment) take(src *Segment) {
	s.name, s.data, s.access, s.owner, s.token = src.name, src.data, src.access, src.owner, src.token
	src.reset()
}

func (s *Segment) reset() {
	s.name, s.data, s.access, s.owner, s.token = "", nil, ipc.ReadWrite, false, 0
}

// Flush syncs mapped content with the object.
// For a shared memory object it is rarely needed, as all the mappings share the same pages.
func (s *Segment) Flush(async bool) error {
	if !s.IsValid() {
		return nil
	}
	if err := flushData(s.data, async); err != nil {
		return errors.Wrap(err, "msync failed")
	}
	return nil
}

// Close unmaps the segment, and, if the segment is the owner, removes object's name.
// After Close the segment is invalid. Closing an invalid segment is a no-op.
func (s *Segment) Close() error {
	if !s.IsValid() {
		return nil
	}
	var result error
	if err := unmapData(s.data); err != nil {
		result = errors.Wrap(err, "munmap failed")
	}
	// the name could have been unlinked by UnlinkOwned and reused since then.
	if s.owner && unregisterOwned(s.name, s.token) {
		if err := unlinkObject(s.name); err != nil && result == nil {
			result = errors.Wrapf(err, "failed to unlink %q", s.name)
		}
		logger().Debug("shared memory removed", "name", s.name)
	}
	s.reset()
	return result
}

// Destroy closes the segment and removes object's name, even if the segment is not the owner.
func (s *Segment) Destroy() error {
	if !s.IsValid() {
		return nil
	}
	name, owner := s.name, s.owner
	if err := s.Close(); err != nil {
		return errors.Wrap(err, "failed to close segment")
	}
	if !owner {
		return Unlink(name)
	}
	return nil
}
