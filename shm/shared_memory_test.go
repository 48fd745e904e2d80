// Copyright 2015 Aleksandr Demakin. All rights reserved.

package shm

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"unsafe"

	ipc "github.com/nxgtw/go-shm"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testObjName = fmt.Sprintf("/go-shm-test-%d", os.Getpid())

func TestSegmentDefaultInvalid(t *testing.T) {
	a := assert.New(t)
	var seg Segment
	a.False(seg.IsValid())
	a.Nil(seg.Data())
	a.Equal(0, seg.Size())
	a.Equal("", seg.Name())
	a.False(seg.IsOwner())
	a.NoError(seg.Close())
	var nilSeg *Segment
	a.False(nilSeg.IsValid())
	a.Nil(nilSeg.Data())
	a.Equal(0, nilSeg.Size())
	a.Equal("", nilSeg.Name())
	a.Equal(ipc.ReadWrite, nilSeg.Access())
	a.NoError(nilSeg.Close())
	a.NoError(nilSeg.Flush(false))
	a.NoError(nilSeg.Destroy())
}

func TestValidateName(t *testing.T) {
	a := assert.New(t)
	valid := []string{"/a", "/obj", "/obj.1.2", "/" + strings.Repeat("a", MaxNameLen-2)}
	for _, name := range valid {
		a.NoError(ValidateName(name), name)
	}
	invalid := []string{"", "/", "obj", "//obj", "/ob/j", "/obj\x00", "/.", "/..", "/" + strings.Repeat("a", MaxNameLen-1)}
	for _, name := range invalid {
		a.ErrorIs(ValidateName(name), ErrInvalidName, name)
	}
}

func TestCreateInvalidName(t *testing.T) {
	a := assert.New(t)
	for _, name := range []string{"", "noslash", "/", "/a/b"} {
		seg, err := Create(name, 1024)
		a.ErrorIs(err, ErrInvalidName, name)
		if a.NotNil(seg) {
			a.False(seg.IsValid())
			a.Nil(seg.Data())
			a.Equal(0, seg.Size())
		}
	}
}

func TestCreateZeroSize(t *testing.T) {
	a := assert.New(t)
	seg, err := Create(testObjName, 0)
	a.ErrorIs(err, ErrInvalidSize)
	a.False(seg.IsValid())
	seg, err = Create(testObjName, -1)
	a.ErrorIs(err, ErrInvalidSize)
	a.False(seg.IsValid())
	_, err = Open(testObjName, ipc.ReadOnly)
	a.ErrorIs(err, ErrNotFound)
}

func TestCreateNameLength(t *testing.T) {
	a := assert.New(t)
	seg, err := Create("/"+strings.Repeat("a", 254), 1024)
	a.ErrorIs(err, ErrInvalidName)
	a.False(seg.IsValid())
	Unlink("/" + strings.Repeat("a", 253))
	seg, err = Create("/"+strings.Repeat("a", 253), 1024)
	if !a.NoError(err) {
		return
	}
	defer seg.Close()
	a.True(seg.IsValid())
	a.Equal(1024, seg.Size())
}

func TestCreate(t *testing.T) {
	a := assert.New(t)
	seg, err := Create(testObjName, 1024)
	if !a.NoError(err) {
		return
	}
	defer seg.Close()
	a.True(seg.IsValid())
	a.True(seg.IsOwner())
	a.Equal(testObjName, seg.Name())
	a.Equal(1024, seg.Size())
	a.Len(seg.Data(), 1024)
	a.Equal(ipc.ReadWrite, seg.Access())
	for _, b := range seg.Data() {
		if !a.Equal(byte(0), b) {
			break
		}
	}
	again, err := Create(testObjName, 1024)
	a.ErrorIs(err, ErrAlreadyExists)
	a.False(again.IsValid())
	a.True(seg.IsValid())
}

func TestOpenBeforeCreate(t *testing.T) {
	a := assert.New(t)
	a.NoError(Unlink(testObjName))
	seg, err := Open(testObjName, ipc.ReadWrite)
	a.ErrorIs(err, ErrNotFound)
	a.False(seg.IsValid())
	seg, err = Open(testObjName, ipc.AccessType(42))
	a.ErrorIs(err, ErrInvalidAccess)
	a.False(seg.IsValid())
}

func TestCreateUnique(t *testing.T) {
	a := assert.New(t)
	seg, err := CreateUnique(testObjName, 1024)
	if !a.NoError(err) {
		return
	}
	defer seg.Close()
	a.True(seg.IsValid())
	a.True(strings.HasPrefix(seg.Name(), testObjName))
	a.Equal(1024, seg.Size())
	pid, ok := parseUniqueName(testObjName, seg.Name())
	a.True(ok)
	a.Equal(os.Getpid(), pid)
	seg2, err := CreateUnique(testObjName, 1024)
	if !a.NoError(err) {
		return
	}
	defer seg2.Close()
	a.NotEqual(seg.Name(), seg2.Name())
	_, err = CreateUnique("bad", 1024)
	a.ErrorIs(err, ErrInvalidName)
	_, err = CreateUnique(testObjName, 0)
	a.ErrorIs(err, ErrInvalidSize)
}

func TestMove(t *testing.T) {
	a := assert.New(t)
	seg, err := Create(testObjName, 1024)
	if !a.NoError(err) {
		return
	}
	data := seg.Data()
	moved := seg.Move()
	defer moved.Close()
	a.False(seg.IsValid())
	a.Nil(seg.Data())
	a.Equal(0, seg.Size())
	a.Equal("", seg.Name())
	a.True(moved.IsValid())
	a.True(moved.IsOwner())
	a.Equal(testObjName, moved.Name())
	a.Equal(1024, moved.Size())
	a.Equal(unsafe.Pointer(&data[0]), unsafe.Pointer(&moved.Data()[0]))
	a.NoError(seg.Close())
	// the object must survive closing the moved-from segment.
	opened, err := Open(testObjName, ipc.ReadOnly)
	if a.NoError(err) {
		opened.Close()
	}
	a.False(seg.Move().IsValid())
}

func TestAssign(t *testing.T) {
	a := assert.New(t)
	first, err := Create(testObjName, 1024)
	if !a.NoError(err) {
		return
	}
	secondName := testObjName + "-second"
	second, err := Create(secondName, 2048)
	if !a.NoError(err) {
		first.Close()
		return
	}
	// the destination's object is torn down.
	a.NoError(first.Assign(second))
	defer first.Close()
	a.False(second.IsValid())
	a.True(first.IsValid())
	a.Equal(secondName, first.Name())
	a.Equal(2048, first.Size())
	_, err = Open(testObjName, ipc.ReadOnly)
	a.ErrorIs(err, ErrNotFound)
	// self-assignment does nothing.
	a.NoError(first.Assign(first))
	a.True(first.IsValid())
	// assigning an invalid segment leaves the destination invalid.
	a.NoError(first.Assign(&Segment{}))
	a.False(first.IsValid())
	_, err = Open(secondName, ipc.ReadOnly)
	a.ErrorIs(err, ErrNotFound)
}

func TestConsumerSeesProducerData(t *testing.T) {
	a := assert.New(t)
	producer, err := Create(testObjName, 1024)
	if !a.NoError(err) {
		return
	}
	defer producer.Close()
	consumer, err := Open(testObjName, ipc.ReadOnly)
	if !a.NoError(err) {
		return
	}
	defer consumer.Close()
	a.False(consumer.IsOwner())
	a.Equal(ipc.ReadOnly, consumer.Access())
	a.Equal(1024, consumer.Size())
	a.Equal(producer.Data(), consumer.Data())
	*(*uint64)(unsafe.Pointer(&producer.Data()[0])) = 42
	a.Equal(uint64(42), *(*uint64)(unsafe.Pointer(&consumer.Data()[0])))
	a.Equal(producer.Data(), consumer.Data())
	a.NoError(producer.Flush(false))
}

func TestCloseIdempotent(t *testing.T) {
	a := assert.New(t)
	seg, err := Create(testObjName, 1024)
	if !a.NoError(err) {
		return
	}
	a.NoError(seg.Close())
	a.False(seg.IsValid())
	a.NoError(seg.Close())
	_, err = Open(testObjName, ipc.ReadWrite)
	a.ErrorIs(err, ErrNotFound)
}

func TestNonOwnerCloseKeepsObject(t *testing.T) {
	a := assert.New(t)
	owner, err := Create(testObjName, 1024)
	if !a.NoError(err) {
		return
	}
	defer owner.Close()
	user, err := Open(testObjName, ipc.ReadWrite)
	if !a.NoError(err) {
		return
	}
	a.NoError(user.Close())
	user, err = Open(testObjName, ipc.ReadWrite)
	if a.NoError(err) {
		a.NoError(user.Close())
	}
}

func TestDestroy(t *testing.T) {
	a := assert.New(t)
	owner, err := Create(testObjName, 1024)
	if !a.NoError(err) {
		return
	}
	defer owner.Close()
	user, err := Open(testObjName, ipc.ReadWrite)
	if !a.NoError(err) {
		return
	}
	a.NoError(user.Destroy())
	a.False(user.IsValid())
	_, err = Open(testObjName, ipc.ReadWrite)
	a.ErrorIs(err, ErrNotFound)
	// the owner's mapping is still usable.
	owner.Data()[0] = 1
	a.NoError(owner.Close())
}

func TestUnlink(t *testing.T) {
	a := assert.New(t)
	a.NoError(Unlink(testObjName + "-missing"))
	a.ErrorIs(Unlink("missing"), ErrInvalidName)
	seg, err := Create(testObjName, 1024)
	if !a.NoError(err) {
		return
	}
	a.NoError(Unlink(testObjName))
	seg.Data()[0] = 1
	a.NoError(seg.Close())
}

func TestOwned(t *testing.T) {
	a := assert.New(t)
	first, err := Create(testObjName+"-owned1", 64)
	if !a.NoError(err) {
		return
	}
	defer first.Close()
	second, err := Create(testObjName+"-owned2", 64)
	if !a.NoError(err) {
		return
	}
	defer second.Close()
	user, err := Open(testObjName+"-owned1", ipc.ReadOnly)
	if !a.NoError(err) {
		return
	}
	defer user.Close()
	names := Owned()
	a.Contains(names, testObjName+"-owned1")
	a.Contains(names, testObjName+"-owned2")
	a.NoError(second.Close())
	a.NotContains(Owned(), testObjName+"-owned2")
	a.NoError(UnlinkOwned())
	a.Empty(Owned())
	_, err = Open(testObjName+"-owned1", ipc.ReadOnly)
	a.ErrorIs(err, ErrNotFound)
	// mappings survive.
	first.Data()[0] = 7
	a.Equal(byte(7), user.Data()[0])
}

func TestUnlinkOwnedThenReuseName(t *testing.T) {
	a := assert.New(t)
	name := testObjName + "-reuse"
	first, err := Create(name, 64)
	if !a.NoError(err) {
		return
	}
	defer first.Close()
	a.True(first.IsOwner())
	a.NoError(UnlinkOwned())
	a.False(first.IsOwner())
	second, err := Create(name, 128)
	if !a.NoError(err) {
		return
	}
	defer second.Close()
	a.True(second.IsOwner())
	// the first segment doesn't own the name anymore and must not remove the new object.
	a.NoError(first.Close())
	a.Equal([]string{name}, Owned())
	user, err := Open(name, ipc.ReadOnly)
	if a.NoError(err) {
		a.Equal(128, user.Size())
		user.Close()
	}
	a.True(second.IsOwner())
	a.NoError(second.Close())
	_, err = Open(name, ipc.ReadOnly)
	a.ErrorIs(err, ErrNotFound)
	a.Empty(Owned())
}

func TestOwnershipFollowsMove(t *testing.T) {
	a := assert.New(t)
	seg, err := Create(testObjName, 64)
	if !a.NoError(err) {
		return
	}
	moved := seg.Move()
	a.False(seg.IsOwner())
	a.True(moved.IsOwner())
	a.NoError(seg.Close())
	a.Contains(Owned(), testObjName)
	a.NoError(moved.Close())
	a.NotContains(Owned(), testObjName)
}

func TestParseUniqueName(t *testing.T) {
	a := assert.New(t)
	pid, ok := parseUniqueName("/p", "/p.123.7")
	a.True(ok)
	a.Equal(123, pid)
	for _, name := range []string{"/p", "/p.123", "/p.x.7", "/p.123.x", "/p.0.1", "/q.123.7", "/p.1.2.3", "/px.123.7"} {
		_, ok = parseUniqueName("/p", name)
		a.False(ok, name)
	}
}

func TestSweep(t *testing.T) {
	a := assert.New(t)
	prefix := fmt.Sprintf("/go-shm-sweep-%d", os.Getpid())
	const (
		deadPid  = 999999
		alivePid = 999998
	)
	names := []string{
		fmt.Sprintf("%s.%d.1", prefix, deadPid),
		fmt.Sprintf("%s.%d.2", prefix, alivePid),
		prefix + "-other",
	}
	var segments []*Segment
	defer func() {
		for _, seg := range segments {
			seg.Close()
		}
	}()
	for _, name := range names {
		seg, err := Create(name, 64)
		require.NoError(t, err)
		segments = append(segments, seg)
	}
	own, err := CreateUnique(prefix, 64)
	require.NoError(t, err)
	segments = append(segments, own)
	removed, err := sweep(prefix, func(pid int) (bool, error) {
		return pid != deadPid, nil
	})
	a.NoError(err)
	a.Equal([]string{names[0]}, removed)
	_, err = Open(names[0], ipc.ReadOnly)
	a.ErrorIs(err, ErrNotFound)
	for _, name := range append(names[1:], own.Name()) {
		seg, err := Open(name, ipc.ReadOnly)
		if a.NoError(err, name) {
			seg.Close()
		}
	}
	_, err = sweep(prefix, func(pid int) (bool, error) {
		return false, errors.New("test")
	})
	a.Error(err)
	_, err = Sweep("bad")
	a.ErrorIs(err, ErrInvalidName)
}

func TestReaderWriter(t *testing.T) {
	a := assert.New(t)
	rw, err := Create(testObjName, 1024)
	if !a.NoError(err) {
		return
	}
	defer rw.Close()
	ro, err := Open(testObjName, ipc.ReadOnly)
	if !a.NoError(err) {
		return
	}
	defer ro.Close()
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	writer := NewWriter(rw)
	n, err := writer.WriteAt(data, 128)
	a.NoError(err)
	a.Equal(len(data), n)
	reader := NewReader(ro)
	actual := make([]byte, len(data))
	n, err = reader.ReadAt(actual, 128)
	a.NoError(err)
	a.Equal(len(data), n)
	a.Equal(data, actual)
	n, err = reader.ReadAt(actual, 1020)
	a.Equal(io.EOF, err)
	a.Equal(4, n)
	_, err = reader.ReadAt(actual, 1024)
	a.Equal(io.EOF, err)
	n, err = writer.WriteAt(data, 1020)
	a.Equal(io.EOF, err)
	a.Equal(4, n)
	_, err = NewWriter(ro).Write(data)
	a.ErrorIs(err, ErrReadOnly)
	all, err := io.ReadAll(NewReader(ro))
	a.NoError(err)
	a.Len(all, 1024)
	a.Equal(data, all[128:136])
	a.NoError(ro.Close())
	_, err = reader.ReadAt(actual, 0)
	a.Error(err)
}
